package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

type outboxRepository interface {
	GetPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	RecordAttempt(ctx context.Context, id uuid.UUID, maxAttempts int) error
}

// EventSink delivers a settlement event to interested parties.
type EventSink interface {
	Deliver(ctx context.Context, event domain.OutboxEvent) error
}

// LogSink is the default delivery target; real deployments would swap in an
// email or message-queue sink.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Deliver(_ context.Context, event domain.OutboxEvent) error {
	s.Logger.Info("event delivered",
		"event_id", event.ID,
		"event_type", event.EventType,
		"payload", string(event.Payload),
	)
	return nil
}

// Notifier drains the outbox on an interval. Events are written in the same
// transaction as the settlement they describe, so delivery is at-least-once
// with no lost notifications.
type Notifier struct {
	outbox      outboxRepository
	sink        EventSink
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewNotifier(outbox outboxRepository, sink EventSink, logger *slog.Logger, interval time.Duration, batchSize, maxAttempts int) *Notifier {
	return &Notifier{
		outbox:      outbox,
		sink:        sink,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

func (n *Notifier) Start(ctx context.Context) {
	n.logger.Info("notifier started", "interval", n.interval)

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("notifier stopped")
			return
		case <-ticker.C:
			n.ProcessPending(ctx)
		}
	}
}

func (n *Notifier) ProcessPending(ctx context.Context) {
	events, err := n.outbox.GetPending(ctx, n.batchSize)
	if err != nil {
		n.logger.Error("failed to fetch pending events", "error", err)
		return
	}

	for _, event := range events {
		if err := n.sink.Deliver(ctx, event); err != nil {
			n.logger.Warn("event delivery failed",
				"event_id", event.ID,
				"event_type", event.EventType,
				"attempts", event.Attempts+1,
				"error", err,
			)
			if err := n.outbox.RecordAttempt(ctx, event.ID, n.maxAttempts); err != nil {
				n.logger.Error("failed to record delivery attempt", "event_id", event.ID, "error", err)
			}
			continue
		}

		if err := n.outbox.MarkDelivered(ctx, event.ID, time.Now().UTC()); err != nil {
			n.logger.Error("failed to mark event delivered", "event_id", event.ID, "error", err)
		}
	}
}
