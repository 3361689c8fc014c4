// Package purchaserepo manages repository layer of purchases.
package purchaserepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/internal/outboxrepo"
	"github.com/go-petr/pet-exchange/internal/transactionrepo"
	"github.com/go-petr/pet-exchange/internal/walletrepo"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
	"github.com/go-petr/pet-exchange/pkg/moneypkg"
)

// RepoPGS facilitates purchase repository layer logic.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewTxRepoPGS returns purchase RepoPGS bound to a running transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns purchase RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const purchaseColumns = `id, status, amount, price, user_id, market_id, created_at`

func scanPurchase(row interface{ Scan(dest ...any) error }) (domain.Purchase, error) {
	var p domain.Purchase

	err := row.Scan(
		&p.ID,
		&p.Status,
		&p.Amount,
		&p.Price,
		&p.UserID,
		&p.MarketID,
		&p.CreatedAt,
	)

	return p, err
}

const createQuery = `
INSERT INTO
    purchases (status, amount, price, user_id, market_id)
VALUES
    ($1, $2, $3, $4, $5)
RETURNING ` + purchaseColumns

// Create stores the purchase and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreatePurchaseParams) (domain.Purchase, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, arg.Status, arg.Amount, arg.Price, arg.UserID, arg.MarketID)

	p, err := scanPurchase(row)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx context.Context, %+v)", arg)

		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Constraint {
			case "purchases_market_id_fkey":
				return p, domain.ErrMarketNotFound
			case "purchases_amount_check":
				return p, domain.ErrNegativeAmount
			}
		}

		return p, errorspkg.ErrInternal
	}

	return p, nil
}

const getQuery = `
SELECT ` + purchaseColumns + `
FROM purchases
WHERE id = $1
`

// Get returns the purchase with the given id.
func (r *RepoPGS) Get(ctx context.Context, id uuid.UUID) (domain.Purchase, error) {
	l := zerolog.Ctx(ctx)

	p, err := scanPurchase(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		l.Error().Err(err).Send()

		if err == sql.ErrNoRows {
			return p, domain.ErrPurchaseNotFound
		}

		if dbpkg.IsTransient(err) {
			return p, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return p, errorspkg.ErrInternal
	}

	return p, nil
}

const listByUserQuery = `
SELECT ` + purchaseColumns + `
FROM purchases
WHERE user_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

// List returns the specified page of the user's purchases, newest first.
func (r *RepoPGS) List(ctx context.Context, arg domain.ListPurchasesParams) ([]domain.Purchase, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listByUserQuery, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Purchase{}

	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, p)
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

// Purchase buys arg.Amount of the market's base currency for the user.
//
// Within a single db transaction it locks both wallets, checks the quote wallet
// covers the cost, moves the balances, journals both movements, stores the
// purchase and its settlement outbox entry. Nothing is written when any step fails.
func (r *RepoPGS) Purchase(ctx context.Context, arg domain.PurchaseParams) (domain.PurchaseTxResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.PurchaseTxResult

	totalCost := moneypkg.Cost(arg.Amount, arg.Market.Price)

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return result, errorspkg.ErrInternal
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	walletRepo := walletrepo.NewRepoPGS(tx)
	journal := transactionrepo.NewRepoPGS(tx)
	outbox := outboxrepo.NewRepoPGS(tx)
	purchases := NewTxRepoPGS(tx)

	base, quote, err := lockWallets(ctx, walletRepo, arg.UserID, arg.Market)
	if err != nil {
		return result, err
	}

	if quote.Available().LessThan(totalCost) {
		l.Info().
			Str("wallet_id", quote.ID.String()).
			Str("available", quote.Available().String()).
			Str("cost", totalCost.String()).
			Msg("insufficient funds")

		return result, domain.ErrInsufficientFunds
	}

	result.QuoteWallet, err = walletRepo.AddBalance(ctx, quote.ID, totalCost.Neg())
	if err != nil {
		return result, err
	}

	result.BaseWallet, err = walletRepo.AddBalance(ctx, base.ID, arg.Amount)
	if err != nil {
		return result, err
	}

	result.BaseTransaction, err = journal.Append(ctx, domain.CreateTransactionParams{
		WalletID: base.ID,
		Amount:   arg.Amount,
		Type:     domain.TransactionCredit,
		Status:   domain.TransactionDone,
	})
	if err != nil {
		return result, err
	}

	result.QuoteTransaction, err = journal.Append(ctx, domain.CreateTransactionParams{
		WalletID: quote.ID,
		Amount:   totalCost,
		Type:     domain.TransactionDebt,
		Status:   domain.TransactionDone,
	})
	if err != nil {
		return result, err
	}

	result.Purchase, err = purchases.Create(ctx, domain.CreatePurchaseParams{
		Status:   domain.PurchaseDone,
		Amount:   arg.Amount,
		Price:    totalCost,
		UserID:   arg.UserID,
		MarketID: arg.Market.ID,
	})
	if err != nil {
		return result, err
	}

	if _, err := outbox.Create(ctx, result.Purchase.ID, arg.Market.ID); err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()

		if dbpkg.IsTransient(err) {
			return domain.PurchaseTxResult{}, errorspkg.Retryable(domain.ErrLockConflict)
		}

		return domain.PurchaseTxResult{}, errorspkg.ErrInternal
	}

	return result, nil
}

// lockWallets locks the user's base and quote wallets of the market.
// To avoid deadlocks the wallets are locked in consistent currency id order.
func lockWallets(ctx context.Context, r *walletrepo.RepoPGS, userID uuid.UUID, m domain.Market) (base, quote domain.Wallet, err error) {
	first, second := lockOrder(m.BaseCurrencyID, m.QuoteCurrencyID)

	w1, err := r.GetForUpdate(ctx, first, userID)
	if err != nil {
		return base, quote, err
	}

	w2, err := r.GetForUpdate(ctx, second, userID)
	if err != nil {
		return base, quote, err
	}

	if w1.CurrencyID == m.BaseCurrencyID {
		return w1, w2, nil
	}

	return w2, w1, nil
}

func lockOrder(a, b int32) (int32, int32) {
	if a < b {
		return a, b
	}

	return b, a
}
