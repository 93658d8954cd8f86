package domain

import (
	"time"

	"github.com/google/uuid"
)

type OwnerKind string

const (
	OwnerKindIssuer   OwnerKind = "issuer"
	OwnerKindInvestor OwnerKind = "investor"
)

// Account holds a single party's funds in one currency. Balance and Reserved
// are minor units; Reserved never exceeds Balance. Only the ledger mutates
// accounts.
type Account struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	OwnerKind OwnerKind
	Currency  Currency
	Balance   int64
	Reserved  int64
	Version   int64
	CreatedAt time.Time
}

// Available is the portion of the balance not locked under active bids.
func (a *Account) Available() int64 {
	return a.Balance - a.Reserved
}

func (a *Account) BalanceMoney() Money {
	return Money{Amount: a.Balance, Currency: a.Currency}
}

func (a *Account) ReservedMoney() Money {
	return Money{Amount: a.Reserved, Currency: a.Currency}
}

func (a *Account) AvailableMoney() Money {
	return Money{Amount: a.Available(), Currency: a.Currency}
}

type Issuer struct {
	ID        uuid.UUID
	FullName  string
	CreatedAt time.Time
}

type Investor struct {
	ID        uuid.UUID
	FullName  string
	CreatedAt time.Time
}
