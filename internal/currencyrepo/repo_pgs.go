// Package currencyrepo manages repository layer of currencies.
package currencyrepo

import (
	"context"
	"database/sql"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates currency repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns currency RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const createQuery = `
INSERT INTO
    currencies (name, symbol)
VALUES
    ($1, $2)
RETURNING id, name, symbol, created_at
`

// Create creates the currency and then returns it.
func (r *RepoPGS) Create(ctx context.Context, name, symbol string) (domain.Currency, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, name, symbol)

	var c domain.Currency

	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.CreatedAt)
	if err != nil {
		l.Error().Err(err).Send()

		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "currencies_symbol_key" {
				return c, domain.ErrCurrencyAlreadyExists
			}
		}

		return c, errorspkg.ErrInternal
	}

	return c, nil
}

const getQuery = `
SELECT
	id, name, symbol, created_at
FROM currencies
WHERE id = $1
`

// Get returns the currency with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int32) (domain.Currency, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getQuery, id)

	var c domain.Currency

	err := row.Scan(&c.ID, &c.Name, &c.Symbol, &c.CreatedAt)
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return c, domain.ErrCurrencyNotFound
		}

		return c, errorspkg.ErrInternal
	}

	return c, nil
}
