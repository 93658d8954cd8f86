package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/factorly/marketplace/internal/domain"
)

type fakeOutbox struct {
	pending   []domain.OutboxEvent
	delivered []uuid.UUID
	attempts  []uuid.UUID
	fetchErr  error
}

func (f *fakeOutbox) GetPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutbox) MarkDelivered(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeOutbox) RecordAttempt(_ context.Context, id uuid.UUID, _ int) error {
	f.attempts = append(f.attempts, id)
	return nil
}

type fakeSink struct {
	failFor map[uuid.UUID]error
	seen    []uuid.UUID
}

func (f *fakeSink) Deliver(_ context.Context, event domain.OutboxEvent) error {
	f.seen = append(f.seen, event.ID)
	return f.failFor[event.ID]
}

func testEvent(eventType domain.EventType) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{}`),
		Status:    domain.OutboxEventStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_DeliversPendingEvents(t *testing.T) {
	completed := testEvent(domain.EventTypeTradeCompleted)
	rejected := testEvent(domain.EventTypeBidRejected)
	outbox := &fakeOutbox{pending: []domain.OutboxEvent{completed, rejected}}
	sink := &fakeSink{}

	n := NewNotifier(outbox, sink, discardLogger(), time.Second, 10, 3)
	n.ProcessPending(context.Background())

	assert.Equal(t, []uuid.UUID{completed.ID, rejected.ID}, sink.seen)
	assert.Equal(t, []uuid.UUID{completed.ID, rejected.ID}, outbox.delivered)
	assert.Empty(t, outbox.attempts)
}

func TestNotifier_RecordsFailedAttempt(t *testing.T) {
	ok := testEvent(domain.EventTypeTradeCompleted)
	broken := testEvent(domain.EventTypeTradeCancelled)
	outbox := &fakeOutbox{pending: []domain.OutboxEvent{ok, broken}}
	sink := &fakeSink{failFor: map[uuid.UUID]error{broken.ID: errors.New("sink unavailable")}}

	n := NewNotifier(outbox, sink, discardLogger(), time.Second, 10, 3)
	n.ProcessPending(context.Background())

	assert.Equal(t, []uuid.UUID{ok.ID}, outbox.delivered)
	assert.Equal(t, []uuid.UUID{broken.ID}, outbox.attempts)
}

func TestNotifier_RespectsBatchSize(t *testing.T) {
	outbox := &fakeOutbox{pending: []domain.OutboxEvent{
		testEvent(domain.EventTypeTradeCompleted),
		testEvent(domain.EventTypeTradeCompleted),
		testEvent(domain.EventTypeTradeCompleted),
	}}
	sink := &fakeSink{}

	n := NewNotifier(outbox, sink, discardLogger(), time.Second, 2, 3)
	n.ProcessPending(context.Background())

	assert.Len(t, outbox.delivered, 2)
}

func TestNotifier_FetchErrorDeliversNothing(t *testing.T) {
	outbox := &fakeOutbox{fetchErr: errors.New("db down")}
	sink := &fakeSink{}

	n := NewNotifier(outbox, sink, discardLogger(), time.Second, 10, 3)
	n.ProcessPending(context.Background())

	assert.Empty(t, sink.seen)
}

func TestNotifier_StartStopsOnContextCancel(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotifier(outbox, &fakeSink{}, discardLogger(), time.Millisecond, 10, 3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop after cancel")
	}
}
