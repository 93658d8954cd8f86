package handler

import (
	"context"
	"net/http"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type statementService interface {
	GetStatement(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind, limit, offset int) (*domain.Account, []domain.LedgerEntry, int, error)
}

// LedgerHandler serves the per-account journal for issuers and investors.
type LedgerHandler struct {
	accounts statementService
}

func NewLedgerHandler(accounts statementService) *LedgerHandler {
	return &LedgerHandler{accounts: accounts}
}

func (h *LedgerHandler) IssuerStatement(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, domain.OwnerKindIssuer)
}

func (h *LedgerHandler) InvestorStatement(w http.ResponseWriter, r *http.Request) {
	h.statement(w, r, domain.OwnerKindInvestor)
}

func (h *LedgerHandler) statement(w http.ResponseWriter, r *http.Request, kind domain.OwnerKind) {
	id, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	account, entries, total, err := h.accounts.GetStatement(r.Context(), id, kind, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to load statement", "error", err, "owner_id", id)
		RespondDomainError(w, err)
		return
	}

	items := make([]ledgerEntryDTO, 0, len(entries))
	for i := range entries {
		items = append(items, toLedgerEntryDTO(&entries[i]))
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"account": toAccountDTO(account),
		"entries": items,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}
