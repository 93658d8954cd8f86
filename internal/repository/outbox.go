package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.EventType, event.Payload, event.Status, event.Attempts, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, payload, status, attempts, created_at, delivered_at
		FROM outbox_events WHERE status = $1 ORDER BY created_at LIMIT $2`,
		domain.OutboxEventStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("GetPending: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.Attempts, &e.CreatedAt, &e.DeliveredAt)
		if err != nil {
			return nil, fmt.Errorf("GetPending: scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetPending: rows: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET status = $1, delivered_at = $2 WHERE id = $3`,
		domain.OutboxEventStatusDelivered, deliveredAt, id,
	)
	if err != nil {
		return fmt.Errorf("MarkDelivered: %w", err)
	}
	return nil
}

// RecordAttempt bumps the attempt counter, failing the event once attempts
// reach maxAttempts.
func (r *OutboxRepository) RecordAttempt(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $1 THEN $2::text ELSE status END
		WHERE id = $3`,
		maxAttempts, domain.OutboxEventStatusFailed, id,
	)
	if err != nil {
		return fmt.Errorf("RecordAttempt: %w", err)
	}
	return nil
}
