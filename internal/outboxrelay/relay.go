// Package outboxrelay publishes settlement work items that were committed
// with their purchase but not published yet.
package outboxrelay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
)

// Outbox provides data access layer interface needed by the relay.
//
//go:generate mockgen -source relay.go -destination relay_mock.go -package outboxrelay
type Outbox interface {
	ListPending(ctx context.Context, before time.Time, limit int32) ([]domain.OutboxEntry, error)
	MarkDispatched(ctx context.Context, purchaseID uuid.UUID) error
}

// Publisher hands a work item to the settlement queue.
type Publisher interface {
	Publish(ctx context.Context, item domain.SettlementWorkItem) error
}

// Relay periodically publishes pending outbox entries.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	interval  time.Duration
	grace     time.Duration
	batch     int32
}

// New returns Relay polling every interval for up to batch entries older than grace.
// Entries younger than grace are usually still being published by the request that created them.
func New(outbox Outbox, publisher Publisher, interval, grace time.Duration, batch int32) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		grace:     grace,
		batch:     batch,
	}
}

// Run dispatches pending entries until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	l := zerolog.Ctx(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.DispatchPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				l.Warn().Err(err).Int("dispatched", n).Msg("outbox relay")

				continue
			}

			if n > 0 {
				l.Info().Int("dispatched", n).Msg("outbox relay")
			}
		}
	}
}

// DispatchPending publishes one batch of pending entries, oldest first, and
// stops at the first failure. It returns the number of dispatched entries.
func (r *Relay) DispatchPending(ctx context.Context) (int, error) {
	entries, err := r.outbox.ListPending(ctx, time.Now().Add(-r.grace), r.batch)
	if err != nil {
		return 0, err
	}

	for i, e := range entries {
		if err := r.publisher.Publish(ctx, e.WorkItem()); err != nil {
			return i, err
		}

		// Publishing again after a failed mark is harmless, settlement is idempotent.
		if err := r.outbox.MarkDispatched(ctx, e.PurchaseID); err != nil {
			return i, err
		}
	}

	return len(entries), nil
}
