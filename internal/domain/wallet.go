package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds the balance of one user in one currency.
//
// Balance − Locked is the spendable amount and is never negative.
type Wallet struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	Locked     decimal.Decimal `json:"locked"`
	Reserved   decimal.Decimal `json:"reserved"`
	Active     bool            `json:"active"`
	CurrencyID int32           `json:"currency_id"`
	UserID     uuid.UUID       `json:"user_id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Available returns the spendable part of the balance.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.Locked)
}

// CreateWalletParams is the input data to open a wallet.
type CreateWalletParams struct {
	Name       string
	Balance    decimal.Decimal
	CurrencyID int32
	UserID     uuid.UUID
}
