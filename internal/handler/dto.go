package handler

import (
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/service"
	"github.com/google/uuid"
)

// moneyDTO is the wire form of a Money value: a fixed-point decimal string
// plus an ISO currency code.
type moneyDTO struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func toMoneyDTO(m domain.Money) moneyDTO {
	return moneyDTO{Amount: m.String(), Currency: string(m.Currency)}
}

// validate reports field errors; parse assumes validate passed.
func (m moneyDTO) validate(prefix string) []FieldError {
	var errs []FieldError
	if m.Amount == "" {
		errs = append(errs, FieldError{Field: prefix + ".amount", Message: "required"})
	}
	if m.Currency == "" {
		errs = append(errs, FieldError{Field: prefix + ".currency", Message: "required"})
	} else if !domain.Currency(m.Currency).IsValid() {
		errs = append(errs, FieldError{Field: prefix + ".currency", Message: "must be USD, EUR, or GBP"})
	}
	return errs
}

func (m moneyDTO) parse() (domain.Money, error) {
	return domain.ParseMoney(m.Amount, domain.Currency(m.Currency))
}

type accountDTO struct {
	ID        uuid.UUID `json:"id"`
	Balance   moneyDTO  `json:"balance"`
	Reserved  moneyDTO  `json:"reserved"`
	Available moneyDTO  `json:"available"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Balance:   toMoneyDTO(a.BalanceMoney()),
		Reserved:  toMoneyDTO(a.ReservedMoney()),
		Available: toMoneyDTO(a.AvailableMoney()),
	}
}

type bidDTO struct {
	ID           uuid.UUID  `json:"id"`
	InvoiceID    uuid.UUID  `json:"invoice_id"`
	InvestorID   uuid.UUID  `json:"investor_id"`
	InvestorName string     `json:"investor_name,omitempty"`
	Amount       moneyDTO   `json:"amount"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func toBidDTO(b *domain.Bid) bidDTO {
	return bidDTO{
		ID:         b.ID,
		InvoiceID:  b.InvoiceID,
		InvestorID: b.InvestorID,
		Amount:     toMoneyDTO(b.AmountMoney()),
		Status:     string(b.Status),
		CreatedAt:  b.CreatedAt,
		ResolvedAt: b.ResolvedAt,
	}
}

type ledgerEntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	BidID         *uuid.UUID `json:"bid_id,omitempty"`
	EntryType     string     `json:"entry_type"`
	Amount        moneyDTO   `json:"amount"`
	BalanceAfter  moneyDTO   `json:"balance_after"`
	ReservedAfter moneyDTO   `json:"reserved_after"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toLedgerEntryDTO(e *domain.LedgerEntry) ledgerEntryDTO {
	return ledgerEntryDTO{
		ID:            e.ID,
		BidID:         e.BidID,
		EntryType:     string(e.EntryType),
		Amount:        toMoneyDTO(domain.Money{Amount: e.Amount, Currency: e.Currency}),
		BalanceAfter:  toMoneyDTO(domain.Money{Amount: e.BalanceAfter, Currency: e.Currency}),
		ReservedAfter: toMoneyDTO(domain.Money{Amount: e.ReservedAfter, Currency: e.Currency}),
		CreatedAt:     e.CreatedAt,
	}
}

type invoiceDTO struct {
	ID         uuid.UUID  `json:"id"`
	IssuerID   uuid.UUID  `json:"issuer_id"`
	Price      moneyDTO   `json:"price"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Bids       []bidDTO   `json:"bids,omitempty"`
}

func toInvoiceDTO(inv *domain.Invoice, bids []service.InvoiceBid) invoiceDTO {
	dto := invoiceDTO{
		ID:         inv.ID,
		IssuerID:   inv.IssuerID,
		Price:      toMoneyDTO(inv.Price()),
		Status:     string(inv.Status),
		CreatedAt:  inv.CreatedAt,
		ResolvedAt: inv.ResolvedAt,
	}
	for i := range bids {
		b := toBidDTO(&bids[i].Bid)
		b.InvestorName = bids[i].InvestorName
		dto.Bids = append(dto.Bids, b)
	}
	return dto
}

// pathID parses the {id} path segment of the route.
func pathID(value string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, ErrInvalidRequest
	}
	return id, nil
}
