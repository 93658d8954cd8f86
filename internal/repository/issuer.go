package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type IssuerRepository struct {
	db *sql.DB
}

func NewIssuerRepository(db *sql.DB) *IssuerRepository {
	return &IssuerRepository{db: db}
}

func (r *IssuerRepository) Create(ctx context.Context, tx *sql.Tx, issuer *domain.Issuer) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO issuers (id, full_name, created_at) VALUES ($1, $2, $3)`,
		issuer.ID, issuer.FullName, issuer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *IssuerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issuer, error) {
	var i domain.Issuer
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, created_at FROM issuers WHERE id = $1`, id,
	).Scan(&i.ID, &i.FullName, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return &i, nil
}
