package domain

import (
	"time"

	"github.com/google/uuid"
)

type BidStatus string

const (
	BidStatusActive   BidStatus = "active"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
)

// Bid is an investor's offer to buy an invoice. It is immutable except for
// Status, which moves away from active exactly once when the invoice
// resolves. An active bid holds a matching reservation on the investor's
// account for its whole lifetime.
type Bid struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	InvestorID uuid.UUID
	Amount     int64
	Currency   Currency
	Status     BidStatus
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func (b *Bid) AmountMoney() Money {
	return Money{Amount: b.Amount, Currency: b.Currency}
}
