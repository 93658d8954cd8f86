package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrCurrencyMismatch  = errors.New("currency mismatch")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvoiceNotOpen    = errors.New("invoice not open for bidding")
	ErrNoBidsAvailable   = errors.New("no active bids available")
	ErrAlreadyResolved   = errors.New("bid already resolved")
	ErrInvalidTransition = errors.New("invalid invoice status transition")
	ErrInvalidAmount     = errors.New("amount must be a non-negative decimal")
	ErrInvalidCurrency   = errors.New("invalid currency")
	ErrInvalidRequest    = errors.New("invalid request")

	// ErrInternal marks invariant violations such as releasing more than an
	// account has reserved. These indicate a settlement bug, abort the
	// operation and are never detailed to callers.
	ErrInternal = errors.New("internal invariant violation")
)
