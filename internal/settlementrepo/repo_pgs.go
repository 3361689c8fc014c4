// Package settlementrepo manages repository layer of settlement buckets.
package settlementrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/internal/marketrepo"
	"github.com/go-petr/pet-exchange/internal/purchaserepo"
	"github.com/go-petr/pet-exchange/internal/settlementservice"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// RepoPGS facilitates settlement repository layer logic.
type RepoPGS struct {
	db          dbpkg.SQLInterface
	conn        *sql.DB
	lockTimeout time.Duration
}

// NewRepoPGS returns settlement RepoPGS. Bucket locks taken inside its
// transactions give up after lockTimeout with a retryable lock conflict.
func NewRepoPGS(db *sql.DB, lockTimeout time.Duration) *RepoPGS {
	return &RepoPGS{
		db:          db,
		conn:        db,
		lockTimeout: lockTimeout,
	}
}

const settlementColumns = `id, transaction_code, active, amount, order_amount, market_id, created_at, updated_at`

func scanSettlement(row interface{ Scan(dest ...any) error }, extra ...any) (domain.Settlement, error) {
	var (
		s           domain.Settlement
		code        sql.NullString
		orderAmount decimal.NullDecimal
	)

	dest := []any{&s.ID, &code, &s.Active, &s.Amount, &orderAmount, &s.MarketID, &s.CreatedAt, &s.UpdatedAt}

	err := row.Scan(append(dest, extra...)...)
	s.TransactionCode = code.String
	s.OrderAmount = orderAmount.Decimal

	return s, err
}

// mapErr converts driver errors into domain errors.
func mapErr(l *zerolog.Logger, err error, notFound error) error {
	if err == sql.ErrNoRows {
		return notFound
	}

	l.Error().Err(err).Send()

	if dbpkg.IsTransient(err) {
		return errorspkg.Retryable(domain.ErrLockConflict)
	}

	return errorspkg.ErrInternal
}

// BeginTx starts a unit of work.
func (r *RepoPGS) BeginTx(ctx context.Context) (settlementservice.TxRepo, error) {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.Retryable(err)
	}

	if err := dbpkg.SetLockTimeout(ctx, tx, r.lockTimeout.Milliseconds()); err != nil {
		l.Error().Err(err).Send()

		if err := tx.Rollback(); err != nil {
			l.Error().Err(err).Send()
		}

		return nil, errorspkg.Retryable(err)
	}

	return &TxRepoPGS{
		tx:        tx,
		purchases: purchaserepo.NewTxRepoPGS(tx),
		markets:   marketrepo.NewRepoPGS(tx),
	}, nil
}

const getQuery = `
SELECT ` + settlementColumns + `
FROM settlements
WHERE id = $1
`

// Get returns the bucket with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Settlement, error) {
	s, err := scanSettlement(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		return s, mapErr(zerolog.Ctx(ctx), err, domain.ErrSettlementNotFound)
	}

	return s, nil
}

const listByMarketQuery = `
SELECT ` + settlementColumns + `
FROM settlements
WHERE market_id = $1
ORDER BY id
`

// ListByMarket returns all buckets of the market, oldest first.
func (r *RepoPGS) ListByMarket(ctx context.Context, marketID int32) ([]domain.Settlement, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listByMarketQuery, marketID)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Settlement{}

	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, s)
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

const listDueMarketsQuery = `
SELECT s.market_id
FROM settlements s
JOIN markets m ON m.id = s.market_id
WHERE s.active AND s.amount > 0
    AND (s.order_amount IS NOT NULL OR s.amount * m.price >= $1)
ORDER BY s.market_id
`

// ListDueMarkets returns ids of markets whose active bucket is worth at least
// threshold or already has an unconfirmed order.
func (r *RepoPGS) ListDueMarkets(ctx context.Context, threshold decimal.Decimal) ([]int32, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listDueMarketsQuery, threshold)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	ids := []int32{}

	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return ids, nil
}

// TxRepoPGS is a settlement unit of work over one database transaction.
type TxRepoPGS struct {
	tx        *sql.Tx
	purchases *purchaserepo.RepoPGS
	markets   *marketrepo.RepoPGS
}

// GetPurchase returns the purchase with the given id.
func (r *TxRepoPGS) GetPurchase(ctx context.Context, id uuid.UUID) (domain.Purchase, error) {
	return r.purchases.Get(ctx, id)
}

// GetMarket returns the market with the given id.
func (r *TxRepoPGS) GetMarket(ctx context.Context, id int32) (domain.Market, error) {
	return r.markets.Get(ctx, id)
}

const ensureActiveQuery = `
INSERT INTO settlements (market_id)
VALUES ($1)
ON CONFLICT (market_id) WHERE active DO NOTHING
`

const lockActiveQuery = `
SELECT ` + settlementColumns + `
FROM settlements
WHERE market_id = $1 AND active
FOR UPDATE
`

// LockActive returns the market's active bucket, creating an empty one when
// there is none, and holds an exclusive lock on it.
func (r *TxRepoPGS) LockActive(ctx context.Context, marketID int32) (domain.Settlement, error) {
	l := zerolog.Ctx(ctx)

	if _, err := r.tx.ExecContext(ctx, ensureActiveQuery, marketID); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "settlements_market_id_fkey" {
			return domain.Settlement{}, domain.ErrMarketNotFound
		}

		return domain.Settlement{}, mapErr(l, err, domain.ErrSettlementNotFound)
	}

	s, err := scanSettlement(r.tx.QueryRowContext(ctx, lockActiveQuery, marketID))
	if err != nil {
		// The bucket seen by the insert was retired before it could be locked.
		if err == sql.ErrNoRows {
			return s, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return s, mapErr(l, err, domain.ErrSettlementNotFound)
	}

	return s, nil
}

const markProcessedQuery = `
INSERT INTO settlement_purchases (purchase_id, settlement_id)
VALUES ($1, $2)
ON CONFLICT (purchase_id) DO NOTHING
`

// MarkProcessed records that the purchase was accounted into the bucket.
// It returns false when the purchase had already been accounted.
func (r *TxRepoPGS) MarkProcessed(ctx context.Context, purchaseID uuid.UUID, settlementID int64) (bool, error) {
	l := zerolog.Ctx(ctx)

	res, err := r.tx.ExecContext(ctx, markProcessedQuery, purchaseID, settlementID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "settlement_purchases_purchase_id_fkey" {
			return false, domain.ErrPurchaseNotFound
		}

		return false, mapErr(l, err, domain.ErrSettlementNotFound)
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return false, errorspkg.ErrInternal
	}

	return n == 1, nil
}

const addAmountQuery = `
UPDATE settlements
SET amount = amount + $1, updated_at = now()
WHERE id = $2 AND active
RETURNING ` + settlementColumns

// AddAmount adds amount to the active bucket and returns it.
func (r *TxRepoPGS) AddAmount(ctx context.Context, id int64, amount decimal.Decimal) (domain.Settlement, error) {
	s, err := scanSettlement(r.tx.QueryRowContext(ctx, addAmountQuery, amount, id))
	if err != nil {
		return s, mapErr(zerolog.Ctx(ctx), err, domain.ErrSettlementNotFound)
	}

	return s, nil
}

const placeOrderQuery = `
UPDATE settlements
SET order_amount = amount, updated_at = now()
WHERE id = $1 AND active AND order_amount IS NULL AND amount > 0
RETURNING ` + settlementColumns

// PlaceOrder fixes the bucket's current amount as the amount sent to the exchange.
func (r *TxRepoPGS) PlaceOrder(ctx context.Context, id int64) (domain.Settlement, error) {
	s, err := scanSettlement(r.tx.QueryRowContext(ctx, placeOrderQuery, id))
	if err != nil {
		return s, mapErr(zerolog.Ctx(ctx), err, domain.ErrSettlementNotFound)
	}

	return s, nil
}

const retireQuery = `
UPDATE settlements s
SET active = false, transaction_code = $1, amount = s.order_amount, updated_at = now()
FROM settlements old
WHERE s.id = $2 AND old.id = s.id AND s.active AND s.order_amount IS NOT NULL
RETURNING s.id, s.transaction_code, s.active, s.amount, s.order_amount, s.market_id, s.created_at, s.updated_at,
    old.amount - s.order_amount
`

const carryQuery = `
INSERT INTO settlements (market_id, amount)
VALUES ($1, $2)
`

// Retire deactivates the ordered bucket, stores the exchange's transaction code
// and keeps the order amount as the bucket's amount. Whatever was accounted
// after the order was placed moves into a new active bucket of the market.
func (r *TxRepoPGS) Retire(ctx context.Context, id int64, transactionCode string) (domain.Settlement, error) {
	l := zerolog.Ctx(ctx)

	var rest decimal.Decimal

	s, err := scanSettlement(r.tx.QueryRowContext(ctx, retireQuery, transactionCode, id), &rest)
	if err != nil {
		return s, mapErr(l, err, domain.ErrSettlementNotFound)
	}

	if !rest.IsPositive() {
		return s, nil
	}

	if _, err := r.tx.ExecContext(ctx, carryQuery, s.MarketID, rest); err != nil {
		return domain.Settlement{}, mapErr(l, err, domain.ErrSettlementNotFound)
	}

	l.Info().Int64("settlement_id", id).Str("carried", rest.String()).Msg("rest of the bucket carried over")

	return s, nil
}

// Commit commits the unit of work.
func (r *TxRepoPGS) Commit() error {
	if err := r.tx.Commit(); err != nil {
		if dbpkg.IsTransient(err) {
			return errorspkg.Retryable(domain.ErrLockConflict)
		}

		return errorspkg.Retryable(err)
	}

	return nil
}

// Rollback aborts the unit of work. It is a no-op after Commit.
func (r *TxRepoPGS) Rollback() error {
	if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
