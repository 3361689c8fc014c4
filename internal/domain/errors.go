// Package domain provides definitions of all entities.
package domain

import "errors"

var (
	// ErrCurrencyNotFound indicates that the currency is not found.
	ErrCurrencyNotFound = errors.New("currency not found")
	// ErrCurrencyAlreadyExists indicates that the currency symbol is taken.
	ErrCurrencyAlreadyExists = errors.New("currency already exists")
	// ErrMarketNotFound indicates that the market is not found.
	ErrMarketNotFound = errors.New("market not found")
	// ErrMarketAlreadyExists indicates that the market symbol is taken.
	ErrMarketAlreadyExists = errors.New("market already exists")
	// ErrInactiveMarket indicates that the market does not accept purchases.
	ErrInactiveMarket = errors.New("market is not active")
	// ErrInvalidMarket indicates that the market trades a currency for itself or has no positive price.
	ErrInvalidMarket = errors.New("invalid market")
	// ErrWalletNotFound indicates that the user has no wallet for the currency.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletAlreadyExists indicates that the user already has a wallet for the currency.
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	// ErrWalletOwnerMismatch indicates that the wallet belongs to another user.
	ErrWalletOwnerMismatch = errors.New("wallet does not belong to the user")
	// ErrInsufficientFunds indicates that the available balance does not cover the cost.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount indicates invalid amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNegativeAmount indicates zero or negative amount.
	ErrNegativeAmount = errors.New("amount must be positive")
	// ErrAmountPrecision indicates that the amount does not fit the stored precision.
	ErrAmountPrecision = errors.New("amount exceeds supported precision")
	// ErrTransactionNotFound indicates that the journal entry is not found.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrPurchaseNotFound indicates that the purchase is not found.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrSettlementNotFound indicates that the settlement bucket is not found.
	ErrSettlementNotFound = errors.New("settlement not found")
	// ErrLockConflict indicates a lock wait timeout, deadlock or serialization failure.
	ErrLockConflict = errors.New("lock conflict")
	// ErrGateway indicates that the external exchange did not confirm the settlement.
	ErrGateway = errors.New("settlement gateway error")
)
