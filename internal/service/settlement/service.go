// Package settlement coordinates bid placement and trade resolution across
// the invoice state machine, the bid set and the ledger. Each operation runs
// in one database transaction opened here; the invoice row lock taken at the
// start serializes all settlement work per invoice.
package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type invoiceRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Invoice, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.InvoiceStatus, resolvedAt time.Time) error
}

type bidRepo interface {
	Create(ctx context.Context, tx *sql.Tx, bid *domain.Bid) error
	ListActiveByInvoiceID(ctx context.Context, tx *sql.Tx, invoiceID uuid.UUID) ([]domain.Bid, error)
	MarkResolved(ctx context.Context, tx *sql.Tx, id uuid.UUID, outcome domain.BidStatus, resolvedAt time.Time) error
}

type accountRepo interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind) (*domain.Account, error)
}

type fundsLedger interface {
	Reserve(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error
	Release(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error
	Capture(ctx context.Context, tx *sql.Tx, fromID, toID uuid.UUID, amount domain.Money, bidID *uuid.UUID) error
	LockAccounts(ctx context.Context, tx *sql.Tx, ids ...uuid.UUID) error
}

type outboxRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error
}

type Service struct {
	invoices invoiceRepo
	bids     bidRepo
	accounts accountRepo
	ledger   fundsLedger
	outbox   outboxRepo
	db       *sql.DB
}

func NewService(
	invoices invoiceRepo,
	bids bidRepo,
	accounts accountRepo,
	ledger fundsLedger,
	outbox outboxRepo,
	db *sql.DB,
) *Service {
	return &Service{
		invoices: invoices,
		bids:     bids,
		accounts: accounts,
		ledger:   ledger,
		outbox:   outbox,
		db:       db,
	}
}

func (s *Service) writeEvent(ctx context.Context, tx *sql.Tx, eventType domain.EventType, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("writeEvent: marshal: %w", err)
	}

	event := &domain.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    domain.OutboxEventStatusPending,
		CreatedAt: now,
	}
	if err := s.outbox.Create(ctx, tx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}
