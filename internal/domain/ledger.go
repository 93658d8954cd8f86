package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	EntryTypeReserve       EntryType = "reserve"
	EntryTypeRelease       EntryType = "release"
	EntryTypeCaptureDebit  EntryType = "capture_debit"
	EntryTypeCaptureCredit EntryType = "capture_credit"
)

// LedgerEntry is the journal record written for every balance or reservation
// movement, carrying the account snapshots on both sides of the write.
type LedgerEntry struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	BidID          *uuid.UUID
	EntryType      EntryType
	Amount         int64
	Currency       Currency
	BalanceBefore  int64
	BalanceAfter   int64
	ReservedBefore int64
	ReservedAfter  int64
	CreatedAt      time.Time
}
