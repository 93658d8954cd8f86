package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type investorAccountService interface {
	RegisterInvestor(ctx context.Context, fullName string, funding domain.Money) (*domain.Investor, *domain.Account, error)
	GetInvestor(ctx context.Context, id uuid.UUID) (*domain.Investor, *domain.Account, error)
	ListInvestors(ctx context.Context, limit, offset int) ([]domain.Investor, int, error)
}

type InvestorHandler struct {
	accounts investorAccountService
}

func NewInvestorHandler(accounts investorAccountService) *InvestorHandler {
	return &InvestorHandler{accounts: accounts}
}

type registerInvestorRequest struct {
	FullName string   `json:"full_name"`
	Funding  moneyDTO `json:"funding"`
}

func (r registerInvestorRequest) Validate() []FieldError {
	var errs []FieldError
	if r.FullName == "" {
		errs = append(errs, FieldError{Field: "full_name", Message: "required"})
	}
	errs = append(errs, r.Funding.validate("funding")...)
	return errs
}

type investorDTO struct {
	ID        uuid.UUID   `json:"id"`
	FullName  string      `json:"full_name"`
	Account   *accountDTO `json:"account,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

func (h *InvestorHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerInvestorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	funding, err := req.Funding.parse()
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	investor, account, err := h.accounts.RegisterInvestor(r.Context(), req.FullName, funding)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to register investor", "error", err)
		RespondDomainError(w, err)
		return
	}

	acct := toAccountDTO(account)
	RespondSuccess(w, http.StatusCreated, investorDTO{
		ID:        investor.ID,
		FullName:  investor.FullName,
		Account:   &acct,
		CreatedAt: investor.CreatedAt,
	})
}

func (h *InvestorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	investor, account, err := h.accounts.GetInvestor(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	acct := toAccountDTO(account)
	RespondSuccess(w, http.StatusOK, investorDTO{
		ID:        investor.ID,
		FullName:  investor.FullName,
		Account:   &acct,
		CreatedAt: investor.CreatedAt,
	})
}

func (h *InvestorHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	investors, total, err := h.accounts.ListInvestors(r.Context(), limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list investors", "error", err)
		RespondDomainError(w, err)
		return
	}

	items := make([]investorDTO, 0, len(investors))
	for _, inv := range investors {
		items = append(items, investorDTO{ID: inv.ID, FullName: inv.FullName, CreatedAt: inv.CreatedAt})
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
