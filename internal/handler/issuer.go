package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type issuerAccountService interface {
	RegisterIssuer(ctx context.Context, fullName string, funding domain.Money) (*domain.Issuer, *domain.Account, error)
	GetIssuer(ctx context.Context, id uuid.UUID) (*domain.Issuer, *domain.Account, error)
}

type issuerInvoiceService interface {
	ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]domain.Invoice, error)
}

type IssuerHandler struct {
	accounts issuerAccountService
	invoices issuerInvoiceService
}

func NewIssuerHandler(accounts issuerAccountService, invoices issuerInvoiceService) *IssuerHandler {
	return &IssuerHandler{accounts: accounts, invoices: invoices}
}

type registerIssuerRequest struct {
	FullName string    `json:"full_name"`
	Funding  *moneyDTO `json:"funding,omitempty"`
}

func (r registerIssuerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.FullName == "" {
		errs = append(errs, FieldError{Field: "full_name", Message: "required"})
	}
	if r.Funding != nil {
		errs = append(errs, r.Funding.validate("funding")...)
	}
	return errs
}

type issuerDTO struct {
	ID        uuid.UUID    `json:"id"`
	FullName  string       `json:"full_name"`
	Account   accountDTO   `json:"account"`
	CreatedAt time.Time    `json:"created_at"`
	Invoices  []invoiceDTO `json:"invoices,omitempty"`
}

func (h *IssuerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerIssuerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	// Issuers start with an empty EUR balance unless funded explicitly.
	funding := domain.Money{Amount: 0, Currency: domain.CurrencyEUR}
	if req.Funding != nil {
		var err error
		funding, err = req.Funding.parse()
		if err != nil {
			RespondDomainError(w, err)
			return
		}
	}

	issuer, account, err := h.accounts.RegisterIssuer(r.Context(), req.FullName, funding)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to register issuer", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, issuerDTO{
		ID:        issuer.ID,
		FullName:  issuer.FullName,
		Account:   toAccountDTO(account),
		CreatedAt: issuer.CreatedAt,
	})
}

func (h *IssuerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	issuer, account, err := h.accounts.GetIssuer(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	invoices, err := h.invoices.ListByIssuer(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list issuer invoices", "error", err)
		RespondDomainError(w, err)
		return
	}

	dto := issuerDTO{
		ID:        issuer.ID,
		FullName:  issuer.FullName,
		Account:   toAccountDTO(account),
		CreatedAt: issuer.CreatedAt,
	}
	for i := range invoices {
		dto.Invoices = append(dto.Invoices, toInvoiceDTO(&invoices[i], nil))
	}

	RespondSuccess(w, http.StatusOK, dto)
}
