package settlementservice

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/internal/integrationtest/helpers"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
	"github.com/go-petr/pet-exchange/pkg/randompkg"
)

var threshold = decimal.RequireFromString("10.0")

type decimalMatcher struct {
	want decimal.Decimal
}

func decimalEq(s string) gomock.Matcher {
	return decimalMatcher{want: decimal.RequireFromString(s)}
}

func (m decimalMatcher) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is equal to " + m.want.String()
}

type orderMatcher struct {
	want domain.SettlementOrder
}

func (m orderMatcher) Matches(x interface{}) bool {
	o, ok := x.(domain.SettlementOrder)
	return ok &&
		o.Reference == m.want.Reference &&
		o.MarketSymbol == m.want.MarketSymbol &&
		o.Amount.Equal(m.want.Amount)
}

func (m orderMatcher) String() string {
	return fmt.Sprintf("is order %+v", m.want)
}

func TestSettle(t *testing.T) {
	market := helpers.RandomMarket(decimal.NewFromInt(4))
	userID := randompkg.UserID()

	purchase := helpers.RandomPurchase(userID, market, decimal.RequireFromString("1.6"))

	pending := purchase
	pending.Status = domain.PurchasePending

	bucket := domain.Settlement{ID: 7, Active: true, Amount: decimal.RequireFromString("1.0"), MarketID: market.ID}

	accumulated := bucket
	accumulated.Amount = decimal.RequireFromString("2.6")

	ordered := accumulated
	ordered.OrderAmount = decimal.RequireFromString("2.6")

	retired := ordered
	retired.Active = false
	retired.TransactionCode = "TX-1"

	small := helpers.RandomPurchase(userID, market, decimal.RequireFromString("0.5"))
	afterSmall := bucket
	afterSmall.Amount = decimal.RequireFromString("1.5")

	// An order placed earlier was not confirmed and the bucket kept growing.
	grown := ordered
	grown.Amount = decimal.RequireFromString("3.1")

	order := domain.SettlementOrder{
		Reference:    "7",
		MarketSymbol: market.Symbol,
		Amount:       decimal.RequireFromString("2.6"),
	}

	testCases := []struct {
		name          string
		purchaseID    uuid.UUID
		buildStubs    func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway)
		checkResponse func(t *testing.T, res domain.SettlementResult, err error)
	}{
		{
			name:       "BelowThreshold",
			purchaseID: small.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(small.ID)).Times(1).Return(small, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Eq(small.ID), gomock.Eq(bucket.ID)).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Eq(bucket.ID), decimalEq("0.5")).Times(1).Return(afterSmall, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(0)
				gateway.EXPECT().Settle(gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.False(t, res.Flushed)
				require.True(t, res.Settlement.Active)
				require.False(t, res.Settlement.Ordered())
				require.True(t, res.Settlement.Amount.Equal(decimal.RequireFromString("1.5")))
			},
		},
		{
			name:       "ThresholdReached",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				gomock.InOrder(
					repo.EXPECT().BeginTx(gomock.Any()).Return(tx, nil),
					tx.EXPECT().Commit().Return(nil),
					repo.EXPECT().BeginTx(gomock.Any()).Return(orderTx, nil),
				)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Eq(purchase.ID), gomock.Eq(bucket.ID)).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Eq(bucket.ID), decimalEq("1.6")).Times(1).Return(accumulated, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Eq(bucket.ID)).Times(1).Return(ordered, nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)

				orderTx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				orderTx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(ordered, nil)
				gateway.EXPECT().Settle(gomock.Any(), orderMatcher{order}).Times(1).Return("TX-1", nil)
				orderTx.EXPECT().Retire(gomock.Any(), gomock.Eq(bucket.ID), gomock.Eq("TX-1")).Times(1).Return(retired, nil)
				orderTx.EXPECT().Commit().Times(1).Return(nil)
				orderTx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.True(t, res.Flushed)
				require.False(t, res.Settlement.Active)
				require.Equal(t, "TX-1", res.Settlement.TransactionCode)
			},
		},
		{
			name:       "OrderedBucketResendsOrderAmount",
			purchaseID: small.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				gomock.InOrder(
					repo.EXPECT().BeginTx(gomock.Any()).Return(tx, nil),
					repo.EXPECT().BeginTx(gomock.Any()).Return(orderTx, nil),
				)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(small.ID)).Times(1).Return(small, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(ordered, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Eq(small.ID), gomock.Eq(bucket.ID)).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Eq(bucket.ID), decimalEq("0.5")).Times(1).Return(grown, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)

				orderTx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				orderTx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(grown, nil)
				gateway.EXPECT().Settle(gomock.Any(), orderMatcher{order}).Times(1).Return("TX-1", nil)
				orderTx.EXPECT().Retire(gomock.Any(), gomock.Eq(bucket.ID), gomock.Eq("TX-1")).Times(1).Return(retired, nil)
				orderTx.EXPECT().Commit().Times(1).Return(nil)
				orderTx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.True(t, res.Flushed)
				require.True(t, res.Settlement.Amount.Equal(decimal.RequireFromString("2.6")))
			},
		},
		{
			name:       "GatewayFailureKeepsBucketActive",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				gomock.InOrder(
					repo.EXPECT().BeginTx(gomock.Any()).Return(tx, nil),
					repo.EXPECT().BeginTx(gomock.Any()).Return(orderTx, nil),
				)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Eq(bucket.ID), decimalEq("1.6")).Times(1).Return(accumulated, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Eq(bucket.ID)).Times(1).Return(ordered, nil)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)

				orderTx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				orderTx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(ordered, nil)
				gateway.EXPECT().Settle(gomock.Any(), orderMatcher{order}).Times(1).
					Return("", errorspkg.Retryable(domain.ErrGateway))
				orderTx.EXPECT().Retire(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				orderTx.EXPECT().Commit().Times(0)
				orderTx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.False(t, res.Flushed)
				require.True(t, res.Settlement.Active)
				require.True(t, res.Settlement.OrderAmount.Equal(decimal.RequireFromString("2.6")))
			},
		},
		{
			name:       "GatewayWithoutCode",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				gomock.InOrder(
					repo.EXPECT().BeginTx(gomock.Any()).Return(tx, nil),
					repo.EXPECT().BeginTx(gomock.Any()).Return(orderTx, nil),
				)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Any()).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(accumulated, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(1).Return(ordered, nil)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)

				orderTx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				orderTx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(ordered, nil)
				gateway.EXPECT().Settle(gomock.Any(), gomock.Any()).Times(1).Return("", nil)
				orderTx.EXPECT().Retire(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				orderTx.EXPECT().Commit().Times(0)
				orderTx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.False(t, res.Flushed)
				require.True(t, res.Settlement.Active)
			},
		},
		{
			name:       "Duplicate",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Eq(purchase.ID), gomock.Eq(bucket.ID)).Times(1).Return(false, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				gateway.EXPECT().Settle(gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.True(t, res.Duplicate)
				require.True(t, res.Settlement.Amount.Equal(bucket.Amount))
			},
		},
		{
			name:       "NotDone",
			purchaseID: pending.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(pending.ID)).Times(1).Return(pending, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.NoError(t, err)
				require.True(t, res.Skipped)
			},
		},
		{
			name:       "PurchaseNotFound",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).
					Return(domain.Purchase{}, domain.ErrPurchaseNotFound)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.ErrorIs(t, err, domain.ErrPurchaseNotFound)
				require.False(t, errorspkg.IsRetryable(err))
			},
		},
		{
			name:       "LockConflict",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Any()).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Times(1).
					Return(domain.Settlement{}, errorspkg.Retryable(domain.ErrLockConflict))
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.ErrorIs(t, err, domain.ErrLockConflict)
				require.True(t, errorspkg.IsRetryable(err))
			},
		},
		{
			name:       "PlaceOrderFails",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(tx, nil)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Any()).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(accumulated, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Eq(bucket.ID)).Times(1).
					Return(domain.Settlement{}, errorspkg.Retryable(domain.ErrLockConflict))
				gateway.EXPECT().Settle(gomock.Any(), gomock.Any()).Times(0)
				tx.EXPECT().Commit().Times(0)
				tx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.True(t, errorspkg.IsRetryable(err))
			},
		},
		{
			name:       "RetireFails",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				gomock.InOrder(
					repo.EXPECT().BeginTx(gomock.Any()).Return(tx, nil),
					repo.EXPECT().BeginTx(gomock.Any()).Return(orderTx, nil),
				)
				tx.EXPECT().GetPurchase(gomock.Any(), gomock.Any()).Times(1).Return(purchase, nil)
				tx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				tx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(bucket, nil)
				tx.EXPECT().MarkProcessed(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(true, nil)
				tx.EXPECT().AddAmount(gomock.Any(), gomock.Any(), gomock.Any()).Times(1).Return(accumulated, nil)
				tx.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(1).Return(ordered, nil)
				tx.EXPECT().Commit().Times(1).Return(nil)
				tx.EXPECT().Rollback().Times(1).Return(nil)

				orderTx.EXPECT().GetMarket(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				orderTx.EXPECT().LockActive(gomock.Any(), gomock.Any()).Times(1).Return(ordered, nil)
				gateway.EXPECT().Settle(gomock.Any(), gomock.Any()).Times(1).Return("TX-1", nil)
				orderTx.EXPECT().Retire(gomock.Any(), gomock.Eq(bucket.ID), gomock.Eq("TX-1")).Times(1).
					Return(domain.Settlement{}, errorspkg.Retryable(domain.ErrLockConflict))
				orderTx.EXPECT().Commit().Times(0)
				orderTx.EXPECT().Rollback().Times(1).Return(nil)
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				// The purchase is accounted, the order is left to FlushDue.
				require.NoError(t, err)
				require.False(t, res.Flushed)
				require.True(t, res.Settlement.Active)
				require.True(t, res.Settlement.Ordered())
			},
		},
		{
			name:       "BeginTxFails",
			purchaseID: purchase.ID,
			buildStubs: func(repo *MockRepo, tx, orderTx *MockTxRepo, gateway *MockGateway) {
				repo.EXPECT().BeginTx(gomock.Any()).Times(1).Return(nil, errorspkg.Retryable(errors.New("conn refused")))
			},
			checkResponse: func(t *testing.T, res domain.SettlementResult, err error) {
				require.True(t, errorspkg.IsRetryable(err))
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			tx := NewMockTxRepo(ctrl)
			orderTx := NewMockTxRepo(ctrl)
			gateway := NewMockGateway(ctrl)

			tc.buildStubs(repo, tx, orderTx, gateway)

			s := New(repo, gateway, threshold)

			res, err := s.Settle(context.Background(), tc.purchaseID)
			tc.checkResponse(t, res, err)
		})
	}
}

func TestFlushDue(t *testing.T) {
	market := helpers.RandomMarket(decimal.NewFromInt(4))
	other := helpers.RandomMarket(decimal.NewFromInt(4))
	other.ID = market.ID + 1
	stale := helpers.RandomMarket(decimal.NewFromInt(4))
	stale.ID = market.ID + 2

	due := domain.Settlement{ID: 3, Active: true, Amount: decimal.RequireFromString("2.6"), MarketID: market.ID}
	ordered := due
	ordered.OrderAmount = due.Amount
	retired := ordered
	retired.Active = false
	retired.TransactionCode = "TX-9"

	// Flushed by someone else between listing and locking.
	fresh := domain.Settlement{ID: 4, Active: true, Amount: decimal.Zero, MarketID: other.ID}

	// Ordered earlier and grown since; the exchange is still down.
	unconfirmed := domain.Settlement{
		ID:          5,
		Active:      true,
		Amount:      decimal.RequireFromString("3.5"),
		OrderAmount: decimal.RequireFromString("3"),
		MarketID:    stale.ID,
	}

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	txs := make([]*MockTxRepo, 5)

	for i := range txs {
		txs[i] = NewMockTxRepo(ctrl)
	}

	gateway := NewMockGateway(ctrl)

	repo.EXPECT().ListDueMarkets(gomock.Any(), decimalEq("10")).Times(1).
		Return([]int32{market.ID, other.ID, stale.ID}, nil)

	begins := make([]*gomock.Call, len(txs))
	for i := range txs {
		begins[i] = repo.EXPECT().BeginTx(gomock.Any()).Return(txs[i], nil)
	}

	gomock.InOrder(begins...)

	txs[0].EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Return(market, nil)
	txs[0].EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Return(due, nil)
	txs[0].EXPECT().PlaceOrder(gomock.Any(), gomock.Eq(due.ID)).Return(ordered, nil)
	txs[0].EXPECT().Commit().Return(nil)
	txs[0].EXPECT().Rollback().Return(nil)

	txs[1].EXPECT().GetMarket(gomock.Any(), gomock.Eq(market.ID)).Return(market, nil)
	txs[1].EXPECT().LockActive(gomock.Any(), gomock.Eq(market.ID)).Return(ordered, nil)
	gateway.EXPECT().Settle(gomock.Any(), orderMatcher{domain.SettlementOrder{
		Reference:    "3",
		MarketSymbol: market.Symbol,
		Amount:       due.Amount,
	}}).Times(1).Return("TX-9", nil)
	txs[1].EXPECT().Retire(gomock.Any(), gomock.Eq(due.ID), gomock.Eq("TX-9")).Return(retired, nil)
	txs[1].EXPECT().Commit().Return(nil)
	txs[1].EXPECT().Rollback().Return(nil)

	txs[2].EXPECT().GetMarket(gomock.Any(), gomock.Eq(other.ID)).Return(other, nil)
	txs[2].EXPECT().LockActive(gomock.Any(), gomock.Eq(other.ID)).Return(fresh, nil)
	txs[2].EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(0)
	txs[2].EXPECT().Commit().Times(0)
	txs[2].EXPECT().Rollback().Return(nil)

	txs[3].EXPECT().GetMarket(gomock.Any(), gomock.Eq(stale.ID)).Return(stale, nil)
	txs[3].EXPECT().LockActive(gomock.Any(), gomock.Eq(stale.ID)).Return(unconfirmed, nil)
	txs[3].EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Times(0)
	txs[3].EXPECT().Commit().Return(nil)
	txs[3].EXPECT().Rollback().Return(nil)

	txs[4].EXPECT().GetMarket(gomock.Any(), gomock.Eq(stale.ID)).Return(stale, nil)
	txs[4].EXPECT().LockActive(gomock.Any(), gomock.Eq(stale.ID)).Return(unconfirmed, nil)
	gateway.EXPECT().Settle(gomock.Any(), orderMatcher{domain.SettlementOrder{
		Reference:    "5",
		MarketSymbol: stale.Symbol,
		Amount:       decimal.RequireFromString("3"),
	}}).Times(1).Return("", errorspkg.Retryable(domain.ErrGateway))
	txs[4].EXPECT().Retire(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	txs[4].EXPECT().Commit().Times(0)
	txs[4].EXPECT().Rollback().Return(nil)

	s := New(repo, gateway, threshold)

	n, err := s.FlushDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
