package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type InvestorRepository struct {
	db *sql.DB
}

func NewInvestorRepository(db *sql.DB) *InvestorRepository {
	return &InvestorRepository{db: db}
}

func (r *InvestorRepository) Create(ctx context.Context, tx *sql.Tx, investor *domain.Investor) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO investors (id, full_name, created_at) VALUES ($1, $2, $3)`,
		investor.ID, investor.FullName, investor.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *InvestorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Investor, error) {
	var i domain.Investor
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, created_at FROM investors WHERE id = $1`, id,
	).Scan(&i.ID, &i.FullName, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &i, nil
}

func (r *InvestorRepository) List(ctx context.Context, limit, offset int) ([]domain.Investor, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM investors`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("List: count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, full_name, created_at FROM investors ORDER BY created_at LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var investors []domain.Investor
	for rows.Next() {
		var i domain.Investor
		if err := rows.Scan(&i.ID, &i.FullName, &i.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("List: scan: %w", err)
		}
		investors = append(investors, i)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("List: rows: %w", err)
	}
	return investors, total, nil
}

// ListByIDs fetches investors in bulk for composing bid views.
func (r *InvestorRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Investor, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]domain.Investor{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, full_name, created_at FROM investors WHERE id = ANY($1)`,
		uuidArray(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ListByIDs: %w", err)
	}
	defer rows.Close()

	investors := make(map[uuid.UUID]domain.Investor, len(ids))
	for rows.Next() {
		var i domain.Investor
		if err := rows.Scan(&i.ID, &i.FullName, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListByIDs: scan: %w", err)
		}
		investors[i.ID] = i
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByIDs: rows: %w", err)
	}
	return investors, nil
}
