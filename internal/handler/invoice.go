package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/factorly/marketplace/internal/service"
	"github.com/factorly/marketplace/internal/service/settlement"
	"github.com/google/uuid"
)

// maxDocumentSize bounds multipart uploads at 8 MiB.
const maxDocumentSize = 8 << 20

type invoiceService interface {
	CreateInvoice(ctx context.Context, issuerID uuid.UUID, price domain.Money, doc io.Reader) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, []service.InvoiceBid, error)
}

type settlementService interface {
	PlaceBid(ctx context.Context, req settlement.PlaceBidRequest) (*domain.Bid, error)
	ResolveTrade(ctx context.Context, req settlement.ResolveTradeRequest) (*domain.Invoice, error)
}

type InvoiceHandler struct {
	invoices   invoiceService
	settlement settlementService
}

func NewInvoiceHandler(invoices invoiceService, settlement settlementService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices, settlement: settlement}
}

// Create accepts a multipart form with issuer_id, price, currency and the
// invoice document.
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var fields []FieldError
	issuerID, err := uuid.Parse(r.FormValue("issuer_id"))
	if err != nil {
		fields = append(fields, FieldError{Field: "issuer_id", Message: "must be a valid id"})
	}
	price := r.FormValue("price")
	if price == "" {
		fields = append(fields, FieldError{Field: "price", Message: "required"})
	}
	currency := domain.Currency(r.FormValue("currency"))
	if !currency.IsValid() {
		fields = append(fields, FieldError{Field: "currency", Message: "must be USD, EUR, or GBP"})
	}
	formFile, _, err := r.FormFile("invoice")
	if err != nil {
		fields = append(fields, FieldError{Field: "invoice", Message: "document file required"})
	}
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	defer formFile.Close()

	amount, err := domain.ParseMoney(price, currency)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	inv, err := h.invoices.CreateInvoice(r.Context(), issuerID, amount, formFile)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to create invoice", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toInvoiceDTO(inv, nil))
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	inv, bids, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toInvoiceDTO(inv, bids))
}

type placeBidRequest struct {
	InvestorID string   `json:"investor_id"`
	Amount     moneyDTO `json:"amount"`
}

func (r placeBidRequest) Validate() []FieldError {
	var errs []FieldError
	if r.InvestorID == "" {
		errs = append(errs, FieldError{Field: "investor_id", Message: "required"})
	} else if _, err := uuid.Parse(r.InvestorID); err != nil {
		errs = append(errs, FieldError{Field: "investor_id", Message: "must be a valid id"})
	}
	errs = append(errs, r.Amount.validate("amount")...)
	return errs
}

func (h *InvoiceHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	invoiceID, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, err := req.Amount.parse()
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	bid, err := h.settlement.PlaceBid(r.Context(), settlement.PlaceBidRequest{
		InvoiceID:  invoiceID,
		InvestorID: uuid.MustParse(req.InvestorID),
		Amount:     amount,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to place bid", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toBidDTO(bid))
}

type resolveTradeRequest struct {
	Approve bool    `json:"approve"`
	BidID   *string `json:"bid_id,omitempty"`
}

func (r resolveTradeRequest) Validate() []FieldError {
	var errs []FieldError
	if r.BidID != nil {
		if _, err := uuid.Parse(*r.BidID); err != nil {
			errs = append(errs, FieldError{Field: "bid_id", Message: "must be a valid id"})
		}
	}
	return errs
}

func (h *InvoiceHandler) ResolveTrade(w http.ResponseWriter, r *http.Request) {
	invoiceID, appErr := pathID(r.PathValue("id"))
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req resolveTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var bidID *uuid.UUID
	if req.BidID != nil {
		id := uuid.MustParse(*req.BidID)
		bidID = &id
	}

	inv, err := h.settlement.ResolveTrade(r.Context(), settlement.ResolveTradeRequest{
		InvoiceID: invoiceID,
		Approve:   req.Approve,
		BidID:     bidID,
	})
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to resolve trade", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toInvoiceDTO(inv, nil))
}
