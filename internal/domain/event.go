package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeTradeCompleted EventType = "trade.completed"
	EventTypeTradeCancelled EventType = "trade.cancelled"
	EventTypeBidRejected    EventType = "bid.rejected"
)

type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusDelivered OutboxEventStatus = "delivered"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// OutboxEvent is written in the same transaction as the state change it
// describes and delivered asynchronously by the notifier.
type OutboxEvent struct {
	ID          uuid.UUID
	EventType   EventType
	Payload     []byte
	Status      OutboxEventStatus
	Attempts    int
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
