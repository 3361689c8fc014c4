// Package walletrepo manages repository layer of wallets.
//
// Balances change only through AddBalance, and only on rows the caller locked
// with GetForUpdate in the same transaction.
package walletrepo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// RepoPGS facilitates wallet repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns wallet RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const walletColumns = `id, name, balance, locked, reserved, active, currency_id, user_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (domain.Wallet, error) {
	var w domain.Wallet

	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.Balance,
		&w.Locked,
		&w.Reserved,
		&w.Active,
		&w.CurrencyID,
		&w.UserID,
		&w.CreatedAt,
		&w.UpdatedAt,
	)

	return w, err
}

const createQuery = `
INSERT INTO
    wallets (name, balance, currency_id, user_id)
VALUES
    ($1, $2, $3, $4)
RETURNING ` + walletColumns

// Create opens the wallet and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateWalletParams) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, arg.Name, arg.Balance, arg.CurrencyID, arg.UserID)

	w, err := scanWallet(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx context.Context, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "wallets_currency_id_fkey":
				return w, domain.ErrCurrencyNotFound
			case "wallets_user_id_currency_id_key":
				return w, domain.ErrWalletAlreadyExists
			case "wallets_available_check":
				return w, domain.ErrInsufficientFunds
			}
		}

		return w, errorspkg.ErrInternal
	}

	return w, nil
}

const getQuery = `
SELECT ` + walletColumns + `
FROM wallets
WHERE id = $1
`

// Get returns the wallet with the given id without locking it.
func (r *RepoPGS) Get(ctx context.Context, id uuid.UUID) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	w, err := scanWallet(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return w, domain.ErrWalletNotFound
		}

		return w, errorspkg.ErrInternal
	}

	return w, nil
}

const getForUpdateQuery = `
SELECT ` + walletColumns + `
FROM wallets
WHERE currency_id = $1 AND user_id = $2
FOR UPDATE
`

// GetForUpdate returns the user's wallet in the currency and holds an exclusive
// row lock on it until the enclosing transaction ends.
//
// Callers locking several wallets must do it in ascending currency id order.
func (r *RepoPGS) GetForUpdate(ctx context.Context, currencyID int32, userID uuid.UUID) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	w, err := scanWallet(r.db.QueryRowContext(ctx, getForUpdateQuery, currencyID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			l.Info().Int32("currency_id", currencyID).Str("user_id", userID.String()).Msg("wallet not found")
			return w, domain.ErrWalletNotFound
		}

		l.Error().Err(err).Send()

		if dbpkg.IsTransient(err) {
			return w, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return w, errorspkg.ErrInternal
	}

	return w, nil
}

const addBalanceQuery = `
UPDATE wallets
SET balance = balance + $1, updated_at = now()
WHERE id = $2
RETURNING ` + walletColumns

// AddBalance changes the wallet's balance by delta and returns the changed wallet.
func (r *RepoPGS) AddBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	w, err := scanWallet(r.db.QueryRowContext(ctx, addBalanceQuery, delta, id))
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return w, domain.ErrWalletNotFound
		}

		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Constraint == "wallets_available_check" {
				return w, domain.ErrInsufficientFunds
			}

			// numeric_value_out_of_range: the balance does not fit NUMERIC(16, 6).
			if pqErr.Code == "22003" {
				return w, domain.ErrAmountPrecision
			}
		}

		if dbpkg.IsTransient(err) {
			return w, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return w, errorspkg.ErrInternal
	}

	return w, nil
}

const listByUserQuery = `
SELECT ` + walletColumns + `
FROM wallets
WHERE user_id = $1
ORDER BY currency_id
`

// ListByUser returns all wallets of the user.
func (r *RepoPGS) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listByUserQuery, userID)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Wallet{}

	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, w)
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
