// Package helpers provides random entities and seed data for tests.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-exchange/internal/currencyrepo"
	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/internal/marketrepo"
	"github.com/go-petr/pet-exchange/pkg/currencypkg"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/randompkg"
)

// EquateDecimals compares decimals by value, so 2.6 equals 2.600000.
func EquateDecimals() cmp.Option {
	return cmp.Comparer(func(a, b decimal.Decimal) bool {
		return a.Equal(b)
	})
}

// RandomMarket returns a market that is not stored anywhere.
func RandomMarket(price decimal.Decimal) domain.Market {
	base, quote := randompkg.CurrencySymbol(), randompkg.CurrencySymbol()

	return domain.Market{
		ID:              randompkg.IntBetween(1, 1000),
		Name:            base + "/" + quote,
		Symbol:          currencypkg.MarketSymbol(base, quote),
		Active:          true,
		Price:           price,
		BaseCurrencyID:  1,
		QuoteCurrencyID: 2,
		CreatedAt:       time.Now().Truncate(time.Second).UTC(),
	}
}

// RandomWallet returns a wallet that is not stored anywhere.
func RandomWallet(userID uuid.UUID, currencyID int32, balance decimal.Decimal) domain.Wallet {
	return domain.Wallet{
		ID:         uuid.New(),
		Name:       randompkg.String(6),
		Balance:    balance,
		Locked:     decimal.Zero,
		Reserved:   decimal.Zero,
		Active:     true,
		CurrencyID: currencyID,
		UserID:     userID,
		CreatedAt:  time.Now().Truncate(time.Second).UTC(),
		UpdatedAt:  time.Now().Truncate(time.Second).UTC(),
	}
}

// RandomPurchase returns a completed purchase that is not stored anywhere.
func RandomPurchase(userID uuid.UUID, market domain.Market, amount decimal.Decimal) domain.Purchase {
	return domain.Purchase{
		ID:        uuid.New(),
		Status:    domain.PurchaseDone,
		Amount:    amount,
		Price:     amount.Mul(market.Price),
		UserID:    userID,
		MarketID:  market.ID,
		CreatedAt: time.Now().Truncate(time.Second).UTC(),
	}
}

// SeedCurrency stores a currency with a random symbol.
func SeedCurrency(t *testing.T, db dbpkg.SQLInterface) domain.Currency {
	t.Helper()

	symbol := randompkg.CurrencySymbol()

	c, err := currencyrepo.NewRepoPGS(db).Create(context.Background(), symbol+" coin", symbol)
	if err != nil {
		t.Fatalf("SeedCurrency() failed: %v", err)
	}

	return c
}

// SeedMarket stores an active market trading base for quote at price.
func SeedMarket(t *testing.T, db dbpkg.SQLInterface, base, quote domain.Currency, price string) domain.Market {
	t.Helper()

	m, err := marketrepo.NewRepoPGS(db).Create(context.Background(), domain.CreateMarketParams{
		Name:            base.Symbol + "/" + quote.Symbol,
		Symbol:          currencypkg.MarketSymbol(base.Symbol, quote.Symbol),
		Price:           decimal.RequireFromString(price),
		BaseCurrencyID:  base.ID,
		QuoteCurrencyID: quote.ID,
	})
	if err != nil {
		t.Fatalf("SeedMarket() failed: %v", err)
	}

	return m
}

// SetPrice moves the market to a new price.
func SetPrice(t *testing.T, db dbpkg.SQLInterface, marketID int32, price string) domain.Market {
	t.Helper()

	m, err := marketrepo.NewRepoPGS(db).UpdatePrice(context.Background(), marketID, decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("SetPrice() failed: %v", err)
	}

	return m
}

// SeedWallet stores a wallet of the user in the currency with the given balance.
func SeedWallet(t *testing.T, db dbpkg.SQLInterface, userID uuid.UUID, currencyID int32, balance string) domain.Wallet {
	t.Helper()

	return SeedLockedWallet(t, db, userID, currencyID, balance, "0")
}

// SeedLockedWallet stores a wallet whose balance has locked funds held by
// orders outside this service.
func SeedLockedWallet(t *testing.T, db dbpkg.SQLInterface, userID uuid.UUID, currencyID int32, balance, locked string) domain.Wallet {
	t.Helper()

	const query = `
	INSERT INTO wallets (name, balance, locked, currency_id, user_id)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, name, balance, locked, reserved, active, currency_id, user_id, created_at, updated_at`

	var w domain.Wallet
	if err := db.QueryRowContext(context.Background(), query, randompkg.String(6), balance, locked, currencyID, userID).Scan(
		&w.ID, &w.Name, &w.Balance, &w.Locked, &w.Reserved, &w.Active,
		&w.CurrencyID, &w.UserID, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		t.Fatalf("SeedLockedWallet() failed: %v", err)
	}

	return w
}

// Exchange is a seeded market with one user holding a wallet on each side.
type Exchange struct {
	UserID      uuid.UUID
	Market      domain.Market
	BaseWallet  domain.Wallet
	QuoteWallet domain.Wallet
}

// SeedExchange stores two currencies, a market between them and both wallets of a new user.
func SeedExchange(t *testing.T, db dbpkg.SQLInterface, price, baseBalance, quoteBalance string) Exchange {
	t.Helper()

	return SeedLockedExchange(t, db, price, baseBalance, quoteBalance, "0")
}

// SeedLockedExchange is SeedExchange with quoteLocked of the quote balance locked.
func SeedLockedExchange(t *testing.T, db dbpkg.SQLInterface, price, baseBalance, quoteBalance, quoteLocked string) Exchange {
	t.Helper()

	base := SeedCurrency(t, db)
	quote := SeedCurrency(t, db)
	userID := randompkg.UserID()

	return Exchange{
		UserID:      userID,
		Market:      SeedMarket(t, db, base, quote, price),
		BaseWallet:  SeedWallet(t, db, userID, base.ID, baseBalance),
		QuoteWallet: SeedLockedWallet(t, db, userID, quote.ID, quoteBalance, quoteLocked),
	}
}
