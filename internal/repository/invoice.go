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

const invoiceColumns = `id, issuer_id, amount, currency, document_path, status, created_at, resolved_at`

type InvoiceRepository struct {
	db *sql.DB
}

func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (id, issuer_id, amount, currency, document_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invoice.ID, invoice.IssuerID, invoice.Amount, invoice.Currency,
		invoice.DocumentPath, invoice.Status, invoice.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetByIssuerID(ctx context.Context, issuerID uuid.UUID) ([]domain.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE issuer_id = $1 ORDER BY created_at`, issuerID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByIssuerID: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByIssuerID: scan: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByIssuerID: rows: %w", err)
	}
	return invoices, nil
}

// GetForUpdate locks the invoice row. Every settlement operation takes this
// lock first, which serializes placeBid and resolveTrade per invoice while
// leaving other invoices fully concurrent.
func (r *InvoiceRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Invoice, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return inv, nil
}

// UpdateStatus performs the pending -> terminal transition. The WHERE guard
// backs up the state machine at the store level; zero rows means the invoice
// was not pending.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.InvoiceStatus, resolvedAt time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("UpdateStatus: target %q: %w", status, domain.ErrInvalidTransition)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE invoices SET status = $1, resolved_at = $2 WHERE id = $3 AND status = $4`,
		status, resolvedAt, id, domain.InvoiceStatusPending,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: invoice %s not pending: %w", id, domain.ErrInvalidTransition)
	}
	return nil
}

func scanInvoice(s scanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := s.Scan(
		&inv.ID, &inv.IssuerID, &inv.Amount, &inv.Currency,
		&inv.DocumentPath, &inv.Status, &inv.CreatedAt, &inv.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
