// Package marketrepo manages repository layer of markets.
package marketrepo

import (
	"context"
	"database/sql"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RepoPGS facilitates market repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns market RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const marketColumns = `id, name, symbol, active, price, base_currency_id, quote_currency_id, created_at`

func scanMarket(row *sql.Row) (domain.Market, error) {
	var m domain.Market

	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Symbol,
		&m.Active,
		&m.Price,
		&m.BaseCurrencyID,
		&m.QuoteCurrencyID,
		&m.CreatedAt,
	)

	return m, err
}

const createQuery = `
INSERT INTO
    markets (name, symbol, price, base_currency_id, quote_currency_id)
VALUES
    ($1, $2, $3, $4, $5)
RETURNING ` + marketColumns

// Create creates the market and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateMarketParams) (domain.Market, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery,
		arg.Name,
		arg.Symbol,
		arg.Price,
		arg.BaseCurrencyID,
		arg.QuoteCurrencyID,
	)

	m, err := scanMarket(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx context.Context, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "markets_symbol_key":
				return m, domain.ErrMarketAlreadyExists
			case "markets_base_currency_id_fkey", "markets_quote_currency_id_fkey":
				return m, domain.ErrCurrencyNotFound
			case "markets_currencies_check", "markets_price_check":
				return m, domain.ErrInvalidMarket
			}
		}

		return m, errorspkg.ErrInternal
	}

	return m, nil
}

const getQuery = `
SELECT ` + marketColumns + `
FROM markets
WHERE id = $1
`

// Get returns the market with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int32) (domain.Market, error) {
	l := zerolog.Ctx(ctx)

	m, err := scanMarket(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return m, domain.ErrMarketNotFound
		}

		if dbpkg.IsTransient(err) {
			return m, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return m, errorspkg.ErrInternal
	}

	return m, nil
}

const getBySymbolQuery = `
SELECT ` + marketColumns + `
FROM markets
WHERE symbol = $1
`

// GetBySymbol returns the market with the given symbol.
func (r *RepoPGS) GetBySymbol(ctx context.Context, symbol string) (domain.Market, error) {
	l := zerolog.Ctx(ctx)

	m, err := scanMarket(r.db.QueryRowContext(ctx, getBySymbolQuery, symbol))
	if err != nil {
		l.Info().Err(err).Str("symbol", symbol).Send()

		if err == sql.ErrNoRows {
			return m, domain.ErrMarketNotFound
		}

		return m, errorspkg.ErrInternal
	}

	return m, nil
}

const updatePriceQuery = `
UPDATE markets
SET price = $1, updated_at = now()
WHERE id = $2
RETURNING ` + marketColumns

// UpdatePrice sets the market price. Purchases read the price that is current
// when they start, so later updates do not affect them.
func (r *RepoPGS) UpdatePrice(ctx context.Context, id int32, price decimal.Decimal) (domain.Market, error) {
	l := zerolog.Ctx(ctx)

	m, err := scanMarket(r.db.QueryRowContext(ctx, updatePriceQuery, price, id))
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return m, domain.ErrMarketNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok && pqErr.Constraint == "markets_price_check" {
			return m, domain.ErrInvalidMarket
		}

		return m, errorspkg.ErrInternal
	}

	return m, nil
}
