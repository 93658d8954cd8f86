// Package ledger owns every balance and reservation movement. All mutating
// operations run inside a caller-provided transaction, lock the affected
// account rows and write journal entries, so a single account's history is
// linearizable and a capture is atomic across both accounts involved.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalances(ctx context.Context, tx *sql.Tx, id uuid.UUID, balance, reserved, newVersion int64) error
}

type entryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
}

type Ledger struct {
	accounts accountRepo
	entries  entryRepo
}

func New(accounts accountRepo, entries entryRepo) *Ledger {
	return &Ledger{accounts: accounts, entries: entries}
}

// Reserve locks amount on the account for an active bid. Fails with
// ErrInsufficientFunds when the available balance does not cover it and with
// ErrCurrencyMismatch when the account holds a different currency.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error {
	if !amount.IsPositive() {
		return fmt.Errorf("Reserve: %w", domain.ErrInvalidAmount)
	}

	acct, err := l.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return fmt.Errorf("Reserve: %w", err)
	}
	if acct.Currency != amount.Currency {
		return fmt.Errorf("Reserve: account %s holds %s: %w", accountID, acct.Currency, domain.ErrCurrencyMismatch)
	}
	if acct.Available() < amount.Amount {
		return fmt.Errorf("Reserve: available %d < %d: %w", acct.Available(), amount.Amount, domain.ErrInsufficientFunds)
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		BidID:          bidID,
		EntryType:      domain.EntryTypeReserve,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceBefore:  acct.Balance,
		BalanceAfter:   acct.Balance,
		ReservedBefore: acct.Reserved,
		ReservedAfter:  acct.Reserved + amount.Amount,
		CreatedAt:      time.Now().UTC(),
	}
	if err := l.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("Reserve: journal: %w", err)
	}

	if err := l.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved+amount.Amount, acct.Version+1); err != nil {
		return fmt.Errorf("Reserve: %w", err)
	}
	return nil
}

// Release returns a reservation to the available balance. Releasing more
// than is reserved can only happen through a settlement bug, so it surfaces
// as ErrInternal rather than a caller error.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error {
	if !amount.IsPositive() {
		return fmt.Errorf("Release: %w", domain.ErrInvalidAmount)
	}

	acct, err := l.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	if acct.Currency != amount.Currency {
		return fmt.Errorf("Release: account %s holds %s, releasing %s: %w",
			accountID, acct.Currency, amount.Currency, domain.ErrInternal)
	}
	if acct.Reserved < amount.Amount {
		return fmt.Errorf("Release: reserved %d < %d on account %s: %w",
			acct.Reserved, amount.Amount, accountID, domain.ErrInternal)
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      acct.ID,
		BidID:          bidID,
		EntryType:      domain.EntryTypeRelease,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceBefore:  acct.Balance,
		BalanceAfter:   acct.Balance,
		ReservedBefore: acct.Reserved,
		ReservedAfter:  acct.Reserved - amount.Amount,
		CreatedAt:      time.Now().UTC(),
	}
	if err := l.entries.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("Release: journal: %w", err)
	}

	if err := l.accounts.UpdateBalances(ctx, tx, acct.ID, acct.Balance, acct.Reserved-amount.Amount, acct.Version+1); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// Capture consumes a reservation on the from account and credits the to
// account. Both rows are locked in sorted order before either is read, and
// both sides commit in the caller's transaction or not at all.
func (l *Ledger) Capture(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error {
	if !amount.IsPositive() {
		return fmt.Errorf("Capture: %w", domain.ErrInvalidAmount)
	}
	if fromID == toID {
		return fmt.Errorf("Capture: from and to are the same account %s: %w", fromID, domain.ErrInternal)
	}

	locked, err := l.lockAccountsInOrder(ctx, tx, fromID, toID)
	if err != nil {
		return fmt.Errorf("Capture: %w", err)
	}
	from, to := locked[fromID], locked[toID]

	if from.Currency != amount.Currency || to.Currency != amount.Currency {
		return fmt.Errorf("Capture: %s -> %s in %s: %w", from.Currency, to.Currency, amount.Currency, domain.ErrInternal)
	}
	if from.Reserved < amount.Amount {
		return fmt.Errorf("Capture: reserved %d < %d on account %s: %w",
			from.Reserved, amount.Amount, fromID, domain.ErrInternal)
	}

	now := time.Now().UTC()
	debit := &domain.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      from.ID,
		BidID:          bidID,
		EntryType:      domain.EntryTypeCaptureDebit,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceBefore:  from.Balance,
		BalanceAfter:   from.Balance - amount.Amount,
		ReservedBefore: from.Reserved,
		ReservedAfter:  from.Reserved - amount.Amount,
		CreatedAt:      now,
	}
	if err := l.entries.Create(ctx, tx, debit); err != nil {
		return fmt.Errorf("Capture: debit journal: %w", err)
	}

	credit := &domain.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      to.ID,
		BidID:          bidID,
		EntryType:      domain.EntryTypeCaptureCredit,
		Amount:         amount.Amount,
		Currency:       amount.Currency,
		BalanceBefore:  to.Balance,
		BalanceAfter:   to.Balance + amount.Amount,
		ReservedBefore: to.Reserved,
		ReservedAfter:  to.Reserved,
		CreatedAt:      now,
	}
	if err := l.entries.Create(ctx, tx, credit); err != nil {
		return fmt.Errorf("Capture: credit journal: %w", err)
	}

	if err := l.accounts.UpdateBalances(ctx, tx, from.ID, from.Balance-amount.Amount, from.Reserved-amount.Amount, from.Version+1); err != nil {
		return fmt.Errorf("Capture: debit: %w", err)
	}
	if err := l.accounts.UpdateBalances(ctx, tx, to.ID, to.Balance+amount.Amount, to.Reserved, to.Version+1); err != nil {
		return fmt.Errorf("Capture: credit: %w", err)
	}
	return nil
}

// LockAccounts takes the row locks for all ids in sorted order. Callers
// that will touch several accounts in one transaction lock them here first,
// so the individual operations only re-acquire locks that are already held
// and two transactions can never wait on each other in opposite orders.
func (l *Ledger) LockAccounts(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) error {
	if _, err := l.lockAccountsInOrder(ctx, tx, ids...); err != nil {
		return fmt.Errorf("LockAccounts: %w", err)
	}
	return nil
}

// GetBalance returns the committed balance snapshot.
func (l *Ledger) GetBalance(ctx context.Context, accountID uuid.UUID) (domain.Money, error) {
	acct, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("GetBalance: %w", err)
	}
	return acct.BalanceMoney(), nil
}

// GetAvailable returns the committed balance minus reservations.
func (l *Ledger) GetAvailable(ctx context.Context, accountID uuid.UUID) (domain.Money, error) {
	acct, err := l.accounts.GetByID(ctx, accountID)
	if err != nil {
		return domain.Money{}, fmt.Errorf("GetAvailable: %w", err)
	}
	return acct.AvailableMoney(), nil
}

// Account rows are always locked in sorted UUID order so two captures
// touching the same pair cannot deadlock.
func (l *Ledger) lockAccountsInOrder(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := l.accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}
