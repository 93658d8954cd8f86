package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

const bidColumns = `id, invoice_id, investor_id, amount, currency, status, created_at, resolved_at`

type BidRepository struct {
	db *sql.DB
}

func NewBidRepository(db *sql.DB) *BidRepository {
	return &BidRepository{db: db}
}

func (r *BidRepository) Create(ctx context.Context, tx *sql.Tx, bid *domain.Bid) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bids (id, invoice_id, investor_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.ID, bid.InvoiceID, bid.InvestorID, bid.Amount, bid.Currency,
		bid.Status, bid.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bid, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, id,
	)
	b, err := scanBid(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return b, nil
}

// ListByInvoiceID returns all bids for an invoice in submission order.
func (r *BidRepository) ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]domain.Bid, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE invoice_id = $1 ORDER BY created_at, id`, invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByInvoiceID: %w", err)
	}
	defer rows.Close()
	return collectBids(rows, "ListByInvoiceID")
}

// ListActiveByInvoiceID reads the active bid set inside a settlement
// transaction, in submission order.
func (r *BidRepository) ListActiveByInvoiceID(ctx context.Context, tx *sql.Tx, invoiceID uuid.UUID) ([]domain.Bid, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids
		WHERE invoice_id = $1 AND status = $2 ORDER BY created_at, id`,
		invoiceID, domain.BidStatusActive,
	)
	if err != nil {
		return nil, fmt.Errorf("ListActiveByInvoiceID: %w", err)
	}
	defer rows.Close()
	return collectBids(rows, "ListActiveByInvoiceID")
}

// MarkResolved moves a bid out of active exactly once. Zero affected rows
// means the bid was already resolved (or never existed).
func (r *BidRepository) MarkResolved(ctx context.Context, tx *sql.Tx, id uuid.UUID, outcome domain.BidStatus, resolvedAt time.Time) error {
	if outcome != domain.BidStatusAccepted && outcome != domain.BidStatusRejected {
		return fmt.Errorf("MarkResolved: outcome %q: %w", outcome, domain.ErrInvalidRequest)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE bids SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`,
		outcome, resolvedAt, id, domain.BidStatusActive,
	)
	if err != nil {
		return fmt.Errorf("MarkResolved: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkResolved: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkResolved: bid %s: %w", id, domain.ErrAlreadyResolved)
	}
	return nil
}

func collectBids(rows *sql.Rows, op string) ([]domain.Bid, error) {
	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		bids = append(bids, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return bids, nil
}

func scanBid(s scanner) (*domain.Bid, error) {
	var b domain.Bid
	err := s.Scan(
		&b.ID, &b.InvoiceID, &b.InvestorID, &b.Amount, &b.Currency,
		&b.Status, &b.CreatedAt, &b.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
