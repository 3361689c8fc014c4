// Package purchaseservice manages business logic layer of purchases.
package purchaseservice

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/moneypkg"
)

// Repo provides data access layer interface needed by purchase service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package purchaseservice
type Repo interface {
	Purchase(ctx context.Context, arg domain.PurchaseParams) (domain.PurchaseTxResult, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Purchase, error)
	List(ctx context.Context, arg domain.ListPurchasesParams) ([]domain.Purchase, error)
}

// MarketRepo looks up markets by their symbol.
type MarketRepo interface {
	GetBySymbol(ctx context.Context, symbol string) (domain.Market, error)
}

// Publisher hands a work item to the settlement queue.
type Publisher interface {
	Publish(ctx context.Context, item domain.SettlementWorkItem) error
}

// Outbox records that a work item was published.
type Outbox interface {
	MarkDispatched(ctx context.Context, purchaseID uuid.UUID) error
}

// Service facilitates purchase service layer logic.
type Service struct {
	repo      Repo
	markets   MarketRepo
	publisher Publisher
	outbox    Outbox
}

// New returns purchase service.
func New(repo Repo, markets MarketRepo, publisher Publisher, outbox Outbox) *Service {
	return &Service{
		repo:      repo,
		markets:   markets,
		publisher: publisher,
		outbox:    outbox,
	}
}

// Purchase buys amount of the market's base currency for the user at the
// market's current price and enqueues the purchase for settlement.
//
// The purchase is final once committed. Enqueue failures are only logged:
// the outbox entry stays pending and the relay publishes it later.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, symbol, amount string) (domain.PurchaseTxResult, error) {
	l := zerolog.Ctx(ctx)

	a, err := moneypkg.Parse(amount)
	if err != nil {
		l.Info().Err(err).Str("amount", amount).Send()

		switch err {
		case moneypkg.ErrNotPositive:
			return domain.PurchaseTxResult{}, domain.ErrNegativeAmount
		case moneypkg.ErrPrecision:
			return domain.PurchaseTxResult{}, domain.ErrAmountPrecision
		}

		return domain.PurchaseTxResult{}, domain.ErrInvalidAmount
	}

	market, err := s.markets.GetBySymbol(ctx, symbol)
	if err != nil {
		return domain.PurchaseTxResult{}, err
	}

	if !market.Active {
		return domain.PurchaseTxResult{}, domain.ErrInactiveMarket
	}

	if !moneypkg.Fits(moneypkg.Cost(a, market.Price)) {
		return domain.PurchaseTxResult{}, domain.ErrAmountPrecision
	}

	result, err := s.repo.Purchase(ctx, domain.PurchaseParams{
		UserID: userID,
		Market: market,
		Amount: a,
	})
	if err != nil {
		return domain.PurchaseTxResult{}, err
	}

	s.enqueue(ctx, domain.SettlementWorkItem{
		PurchaseID: result.Purchase.ID,
		MarketID:   market.ID,
	})

	return result, nil
}

func (s *Service) enqueue(ctx context.Context, item domain.SettlementWorkItem) {
	l := zerolog.Ctx(ctx).With().Str("purchase_id", item.PurchaseID.String()).Logger()

	if err := s.publisher.Publish(ctx, item); err != nil {
		l.Warn().Err(err).Msg("settlement work item left in outbox")
		return
	}

	if err := s.outbox.MarkDispatched(ctx, item.PurchaseID); err != nil {
		l.Warn().Err(err).Msg("mark settlement work item dispatched")
	}
}

// Get returns the user's purchase. Purchases of other users are reported as not found.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (domain.Purchase, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Purchase{}, err
	}

	if p.UserID != userID {
		zerolog.Ctx(ctx).Warn().Str("purchase_id", id.String()).Msg("purchase of another user requested")
		return domain.Purchase{}, domain.ErrPurchaseNotFound
	}

	return p, nil
}

// List returns a page of the user's purchases, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, pageSize, pageID int32) ([]domain.Purchase, error) {
	return s.repo.List(ctx, domain.ListPurchasesParams{
		UserID: userID,
		Limit:  pageSize,
		Offset: (pageID - 1) * pageSize,
	})
}
