package purchaseservice

import (
	"context"
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

type paramsMatcher struct {
	want domain.PurchaseParams
}

func (m paramsMatcher) Matches(x interface{}) bool {
	p, ok := x.(domain.PurchaseParams)
	return ok &&
		p.UserID == m.want.UserID &&
		p.Market.ID == m.want.Market.ID &&
		p.Amount.Equal(m.want.Amount)
}

func (m paramsMatcher) String() string {
	return fmt.Sprintf("is %+v", m.want)
}

func TestPurchase(t *testing.T) {
	userID := randompkg.UserID()
	market := helpers.RandomMarket(decimal.NewFromInt(4))

	inactive := market
	inactive.Active = false

	amount := decimal.NewFromInt(2)
	purchase := helpers.RandomPurchase(userID, market, amount)

	txResult := domain.PurchaseTxResult{
		Purchase:    purchase,
		BaseWallet:  helpers.RandomWallet(userID, market.BaseCurrencyID, amount),
		QuoteWallet: helpers.RandomWallet(userID, market.QuoteCurrencyID, decimal.NewFromInt(12)),
	}

	params := paramsMatcher{domain.PurchaseParams{UserID: userID, Market: market, Amount: amount}}
	item := domain.SettlementWorkItem{PurchaseID: purchase.ID, MarketID: market.ID}

	type mocks struct {
		repo      *MockRepo
		markets   *MockMarketRepo
		publisher *MockPublisher
		outbox    *MockOutbox
	}

	testCases := []struct {
		name       string
		amount     string
		buildStubs func(m mocks)
		wantErr    error
		wantResult domain.PurchaseTxResult
	}{
		{
			name:   "OK",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Eq(market.Symbol)).Times(1).Return(market, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), params).Times(1).Return(txResult, nil)
				gomock.InOrder(
					m.publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(item)).Times(1).Return(nil),
					m.outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).Return(nil),
				)
			},
			wantResult: txResult,
		},
		{
			name:   "PublishFailureKeepsPurchase",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), params).Times(1).Return(txResult, nil)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(item)).Times(1).
					Return(errorspkg.Retryable(domain.ErrLockConflict))
				m.outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Any()).Times(0)
			},
			wantResult: txResult,
		},
		{
			name:   "MarkDispatchedFailureKeepsPurchase",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), params).Times(1).Return(txResult, nil)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Eq(item)).Times(1).Return(nil)
				m.outbox.EXPECT().MarkDispatched(gomock.Any(), gomock.Eq(purchase.ID)).Times(1).Return(errorspkg.ErrInternal)
			},
			wantResult: txResult,
		},
		{
			name:   "InvalidAmount",
			amount: "!@#$",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Any()).Times(0)
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:   "NegativeAmount",
			amount: "-1",
			buildStubs: func(m mocks) {
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrNegativeAmount,
		},
		{
			name:   "ZeroAmount",
			amount: "0",
			buildStubs: func(m mocks) {
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrNegativeAmount,
		},
		{
			name:   "TooPrecise",
			amount: "0.0000001",
			buildStubs: func(m mocks) {
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAmountPrecision,
		},
		{
			name:   "CostTooLarge",
			amount: "9000000000",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAmountPrecision,
		},
		{
			name:   "MarketNotFound",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Eq(market.Symbol)).Times(1).
					Return(domain.Market{}, domain.ErrMarketNotFound)
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrMarketNotFound,
		},
		{
			name:   "InactiveMarket",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Eq(market.Symbol)).Times(1).Return(inactive, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInactiveMarket,
		},
		{
			name:   "InsufficientFunds",
			amount: "2",
			buildStubs: func(m mocks) {
				m.markets.EXPECT().GetBySymbol(gomock.Any(), gomock.Any()).Times(1).Return(market, nil)
				m.repo.EXPECT().Purchase(gomock.Any(), params).Times(1).
					Return(domain.PurchaseTxResult{}, domain.ErrInsufficientFunds)
				m.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInsufficientFunds,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			m := mocks{
				repo:      NewMockRepo(ctrl),
				markets:   NewMockMarketRepo(ctrl),
				publisher: NewMockPublisher(ctrl),
				outbox:    NewMockOutbox(ctrl),
			}
			tc.buildStubs(m)

			s := New(m.repo, m.markets, m.publisher, m.outbox)

			got, err := s.Purchase(context.Background(), userID, market.Symbol, tc.amount)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Empty(t, got)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantResult, got)
		})
	}
}

func TestGet(t *testing.T) {
	userID := randompkg.UserID()
	market := helpers.RandomMarket(decimal.NewFromInt(4))
	own := helpers.RandomPurchase(userID, market, decimal.NewFromInt(1))
	foreign := helpers.RandomPurchase(randompkg.UserID(), market, decimal.NewFromInt(1))

	testCases := []struct {
		name    string
		id      uuid.UUID
		stub    func(repo *MockRepo)
		want    domain.Purchase
		wantErr error
	}{
		{
			name: "OK",
			id:   own.ID,
			stub: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(own.ID)).Times(1).Return(own, nil)
			},
			want: own,
		},
		{
			name: "OtherUser",
			id:   foreign.ID,
			stub: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(foreign.ID)).Times(1).Return(foreign, nil)
			},
			wantErr: domain.ErrPurchaseNotFound,
		},
		{
			name: "NotFound",
			id:   own.ID,
			stub: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(own.ID)).Times(1).Return(domain.Purchase{}, domain.ErrPurchaseNotFound)
			},
			wantErr: domain.ErrPurchaseNotFound,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			tc.stub(repo)

			s := New(repo, nil, nil, nil)

			got, err := s.Get(context.Background(), userID, tc.id)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestList(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	userID := randompkg.UserID()
	market := helpers.RandomMarket(decimal.NewFromInt(4))
	purchases := []domain.Purchase{
		helpers.RandomPurchase(userID, market, decimal.NewFromInt(1)),
		helpers.RandomPurchase(userID, market, decimal.NewFromInt(2)),
	}

	repo := NewMockRepo(ctrl)
	repo.EXPECT().
		List(gomock.Any(), gomock.Eq(domain.ListPurchasesParams{UserID: userID, Limit: 5, Offset: 10})).
		Times(1).
		Return(purchases, nil)

	s := New(repo, nil, nil, nil)

	got, err := s.List(context.Background(), userID, 5, 3)
	require.NoError(t, err)
	require.Equal(t, purchases, got)
}
