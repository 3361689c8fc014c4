// Package outboxrepo manages settlement work items that are committed together with their purchase.
package outboxrepo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// RepoPGS facilitates outbox repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns outbox RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

func scanEntry(row interface{ Scan(dest ...any) error }) (domain.OutboxEntry, error) {
	var (
		e            domain.OutboxEntry
		dispatchedAt sql.NullTime
	)

	err := row.Scan(&e.PurchaseID, &e.MarketID, &e.CreatedAt, &dispatchedAt)
	e.DispatchedAt = dispatchedAt.Time

	return e, err
}

const createQuery = `
INSERT INTO
    settlement_outbox (purchase_id, market_id)
VALUES
    ($1, $2)
RETURNING purchase_id, market_id, created_at, dispatched_at
`

// Create stores a pending work item for the purchase.
func (r *RepoPGS) Create(ctx context.Context, purchaseID uuid.UUID, marketID int32) (domain.OutboxEntry, error) {
	l := zerolog.Ctx(ctx)

	e, err := scanEntry(r.db.QueryRowContext(ctx, createQuery, purchaseID, marketID))
	if err != nil {
		l.Error().Err(err).Send()

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "settlement_outbox_purchase_id_fkey":
				return e, domain.ErrPurchaseNotFound
			case "settlement_outbox_market_id_fkey":
				return e, domain.ErrMarketNotFound
			}
		}

		return e, errorspkg.ErrInternal
	}

	return e, nil
}

const listPendingQuery = `
SELECT
	purchase_id, market_id, created_at, dispatched_at
FROM settlement_outbox
WHERE dispatched_at IS NULL AND created_at < $1
ORDER BY created_at
LIMIT $2
`

// ListPending returns up to limit undispatched entries created before the given time, oldest first.
func (r *RepoPGS) ListPending(ctx context.Context, before time.Time, limit int32) ([]domain.OutboxEntry, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listPendingQuery, before, limit)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.OutboxEntry{}

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, e)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const markDispatchedQuery = `
UPDATE settlement_outbox
SET dispatched_at = now()
WHERE purchase_id = $1 AND dispatched_at IS NULL
`

// MarkDispatched records that the work item of the purchase was published.
// Marking an already dispatched entry is a no-op.
func (r *RepoPGS) MarkDispatched(ctx context.Context, purchaseID uuid.UUID) error {
	l := zerolog.Ctx(ctx)

	if _, err := r.db.ExecContext(ctx, markDispatchedQuery, purchaseID); err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	return nil
}
