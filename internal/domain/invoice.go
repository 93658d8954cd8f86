package domain

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusCompleted InvoiceStatus = "completed"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusCompleted, InvoiceStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions leave the status.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCompleted || s == InvoiceStatusCancelled
}

// CanTransitionTo encodes the invoice state machine: pending may move to
// completed or cancelled, terminal states absorb.
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	return s == InvoiceStatusPending && target.IsTerminal()
}

type Invoice struct {
	ID           uuid.UUID
	IssuerID     uuid.UUID
	Amount       int64
	Currency     Currency
	DocumentPath string
	Status       InvoiceStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// Price is the asking price the issuer listed the invoice at.
func (i *Invoice) Price() Money {
	return Money{Amount: i.Amount, Currency: i.Currency}
}
