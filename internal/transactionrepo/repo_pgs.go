// Package transactionrepo manages the append-only journal of wallet movements.
package transactionrepo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// RepoPGS facilitates journal repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns journal RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const appendQuery = `
INSERT INTO
    transactions (amount, status, type, wallet_id)
VALUES
    ($1, $2, $3, $4)
RETURNING id, amount, status, type, wallet_id, created_at
`

// Append records a wallet movement and then returns it.
func (r *RepoPGS) Append(ctx context.Context, arg domain.CreateTransactionParams) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, appendQuery, arg.Amount, arg.Status, arg.Type, arg.WalletID)

	var t domain.Transaction

	err := row.Scan(
		&t.ID,
		&t.Amount,
		&t.Status,
		&t.Type,
		&t.WalletID,
		&t.CreatedAt,
	)

	if err != nil {
		l.Error().Err(err).Msgf("Append(ctx context.Context, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "transactions_wallet_id_fkey":
				return t, domain.ErrWalletNotFound
			case "transactions_amount_check":
				return t, domain.ErrNegativeAmount
			}
		}

		if dbpkg.IsTransient(err) {
			return t, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const getQuery = `
SELECT
	id, amount, status, type, wallet_id, created_at
FROM transactions
WHERE id = $1
`

// Get returns the journal entry with the given id.
func (r *RepoPGS) Get(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, getQuery, id)

	var t domain.Transaction

	err := row.Scan(&t.ID, &t.Amount, &t.Status, &t.Type, &t.WalletID, &t.CreatedAt)
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return t, domain.ErrTransactionNotFound
		}

		return t, errorspkg.ErrInternal
	}

	return t, nil
}

const listByWalletQuery = `
SELECT
	id, amount, status, type, wallet_id, created_at
FROM transactions
WHERE wallet_id = $1
ORDER BY created_at, id
LIMIT $2 OFFSET $3
`

// ListByWallet returns the specified page of the wallet's journal in recording order.
func (r *RepoPGS) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int32) ([]domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listByWalletQuery, walletID, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Transaction{}

	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Amount, &t.Status, &t.Type, &t.WalletID, &t.CreatedAt); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
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
