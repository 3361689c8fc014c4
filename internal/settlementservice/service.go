// Package settlementservice aggregates purchased amounts per market and
// buys them from the external exchange once a bucket is worth the threshold.
package settlementservice

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-exchange/internal/domain"
)

// Repo provides data access layer interface needed by settlement service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package settlementservice
type Repo interface {
	BeginTx(ctx context.Context) (TxRepo, error)
	ListDueMarkets(ctx context.Context, threshold decimal.Decimal) ([]int32, error)
}

// TxRepo is a unit of work over one database transaction.
// Locks taken by its methods are held until Commit or Rollback.
type TxRepo interface {
	GetPurchase(ctx context.Context, id uuid.UUID) (domain.Purchase, error)
	GetMarket(ctx context.Context, id int32) (domain.Market, error)
	// LockActive returns the market's active bucket, creating an empty one when
	// there is none, and locks it.
	LockActive(ctx context.Context, marketID int32) (domain.Settlement, error)
	// MarkProcessed records that the purchase was accounted into the bucket.
	// It returns false when the purchase had already been accounted.
	MarkProcessed(ctx context.Context, purchaseID uuid.UUID, settlementID int64) (bool, error)
	AddAmount(ctx context.Context, id int64, amount decimal.Decimal) (domain.Settlement, error)
	// PlaceOrder fixes the bucket's current amount as its order amount.
	PlaceOrder(ctx context.Context, id int64) (domain.Settlement, error)
	// Retire deactivates the ordered bucket and moves the amount accounted
	// after the order was placed into a new active bucket.
	Retire(ctx context.Context, id int64, transactionCode string) (domain.Settlement, error)
	Commit() error
	Rollback() error
}

// Gateway buys the accumulated amount on the external exchange and returns
// the exchange's transaction code. An error means the purchase is not confirmed.
type Gateway interface {
	Settle(ctx context.Context, order domain.SettlementOrder) (string, error)
}

// Service facilitates settlement service layer logic.
type Service struct {
	repo      Repo
	gateway   Gateway
	threshold decimal.Decimal
}

// New returns settlement service flushing buckets whose amount × price reaches threshold.
func New(repo Repo, gateway Gateway, threshold decimal.Decimal) *Service {
	return &Service{
		repo:      repo,
		gateway:   gateway,
		threshold: threshold,
	}
}

// Settle accounts the purchase into its market's active bucket.
//
// Handling the same purchase again is a no-op reported as Duplicate. When the
// bucket reaches the threshold its order amount is fixed and committed before
// the gateway is called. Every later attempt sends exactly that amount under
// the same reference, and the bucket is retired only if the gateway confirms.
// Errors wrapped by errorspkg.Retryable may succeed when Settle is called again.
func (s *Service) Settle(ctx context.Context, purchaseID uuid.UUID) (domain.SettlementResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.SettlementResult

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return result, err
	}
	defer rollback(ctx, tx)

	purchase, err := tx.GetPurchase(ctx, purchaseID)
	if err != nil {
		return result, err
	}

	if purchase.Status != domain.PurchaseDone {
		l.Warn().Str("purchase_id", purchaseID.String()).Str("status", string(purchase.Status)).Msg("purchase is not settleable")

		result.Skipped = true

		return result, nil
	}

	market, err := tx.GetMarket(ctx, purchase.MarketID)
	if err != nil {
		return result, err
	}

	bucket, err := tx.LockActive(ctx, market.ID)
	if err != nil {
		return result, err
	}

	fresh, err := tx.MarkProcessed(ctx, purchase.ID, bucket.ID)
	if err != nil {
		return result, err
	}

	if !fresh {
		l.Info().Str("purchase_id", purchaseID.String()).Msg("purchase already settled")

		result.Settlement = bucket
		result.Duplicate = true

		return result, nil
	}

	bucket, err = tx.AddAmount(ctx, bucket.ID, purchase.Amount)
	if err != nil {
		return result, err
	}

	if s.due(bucket, market) && !bucket.Ordered() {
		bucket, err = tx.PlaceOrder(ctx, bucket.ID)
		if err != nil {
			return result, err
		}
	}

	if err := tx.Commit(); err != nil {
		return result, err
	}

	result.Settlement = bucket

	if !bucket.Ordered() {
		return result, nil
	}

	settled, flushed, err := s.settleOrder(ctx, market.ID)
	if err != nil {
		// The purchase is accounted, FlushDue retries the order.
		l.Error().Err(err).Int64("settlement_id", bucket.ID).Msg("settle order")
		return result, nil
	}

	result.Settlement, result.Flushed = settled, flushed

	return result, nil
}

// FlushDue retries the gateway for active buckets that already reached the
// threshold or carry an unconfirmed order, e.g. because an earlier gateway
// call failed. It returns the number of retired buckets.
func (s *Service) FlushDue(ctx context.Context) (int, error) {
	l := zerolog.Ctx(ctx)

	marketIDs, err := s.repo.ListDueMarkets(ctx, s.threshold)
	if err != nil {
		return 0, err
	}

	var (
		flushed int
		errs    []error
	)

	for _, id := range marketIDs {
		ok, err := s.flushMarket(ctx, id)
		if err != nil {
			l.Error().Err(err).Int32("market_id", id).Msg("flush due bucket")
			errs = append(errs, err)

			continue
		}

		if ok {
			flushed++
		}
	}

	return flushed, errors.Join(errs...)
}

func (s *Service) flushMarket(ctx context.Context, marketID int32) (bool, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer rollback(ctx, tx)

	market, err := tx.GetMarket(ctx, marketID)
	if err != nil {
		return false, err
	}

	bucket, err := tx.LockActive(ctx, marketID)
	if err != nil {
		return false, err
	}

	// Another worker may have flushed it since it was listed.
	if !s.due(bucket, market) {
		return false, nil
	}

	if !bucket.Ordered() {
		if _, err := tx.PlaceOrder(ctx, bucket.ID); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	_, flushed, err := s.settleOrder(ctx, marketID)

	return flushed, err
}

func (s *Service) due(bucket domain.Settlement, market domain.Market) bool {
	if bucket.Ordered() {
		return true
	}

	return bucket.Amount.IsPositive() && bucket.Amount.Mul(market.Price).GreaterThanOrEqual(s.threshold)
}

// settleOrder asks the gateway to buy the order amount of the market's active
// bucket and retires the bucket on confirmation. A gateway failure leaves the
// bucket active and is not an error of the caller.
func (s *Service) settleOrder(ctx context.Context, marketID int32) (domain.Settlement, bool, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return domain.Settlement{}, false, err
	}
	defer rollback(ctx, tx)

	market, err := tx.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, false, err
	}

	bucket, err := tx.LockActive(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, false, err
	}

	// Confirmed by another worker in between.
	if !bucket.Ordered() {
		return bucket, false, nil
	}

	l := zerolog.Ctx(ctx).With().
		Int64("settlement_id", bucket.ID).
		Str("market", market.Symbol).
		Str("amount", bucket.OrderAmount.String()).
		Logger()

	order := domain.SettlementOrder{
		Reference:    strconv.FormatInt(bucket.ID, 10),
		MarketSymbol: market.Symbol,
		Amount:       bucket.OrderAmount,
	}

	code, err := s.gateway.Settle(ctx, order)
	if err == nil && code == "" {
		err = domain.ErrGateway
	}

	if err != nil {
		l.Warn().Err(err).Msg("settlement not confirmed, bucket stays active")
		return bucket, false, nil
	}

	retired, err := tx.Retire(ctx, bucket.ID, code)
	if err != nil {
		l.Error().Err(err).Str("transaction_code", code).Msg("settlement confirmed but bucket not retired")
		return bucket, false, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Str("transaction_code", code).Msg("settlement confirmed but bucket not retired")
		return bucket, false, err
	}

	l.Info().Str("transaction_code", code).Msg("settlement flushed")

	return retired, true, nil
}

func rollback(ctx context.Context, tx TxRepo) {
	if err := tx.Rollback(); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
	}
}
