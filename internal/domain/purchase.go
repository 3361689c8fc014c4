package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseStatus is the lifecycle state of a purchase.
type PurchaseStatus string

// Purchase statuses.
const (
	PurchasePending PurchaseStatus = "PENDING"
	PurchaseFailed  PurchaseStatus = "FAILED"
	PurchaseDone    PurchaseStatus = "DONE"
)

// Purchase records that a user bought Amount of the market's base currency.
// Price is the total quote cost that was charged, not the unit price.
type Purchase struct {
	ID        uuid.UUID       `json:"id"`
	Status    PurchaseStatus  `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	UserID    uuid.UUID       `json:"user_id"`
	MarketID  int32           `json:"market_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreatePurchaseParams is the input data to store a purchase row.
type CreatePurchaseParams struct {
	Status   PurchaseStatus
	Amount   decimal.Decimal
	Price    decimal.Decimal
	UserID   uuid.UUID
	MarketID int32
}

// PurchaseParams is the input data for the purchase transaction.
type PurchaseParams struct {
	UserID uuid.UUID
	Market Market
	Amount decimal.Decimal
}

// PurchaseTxResult is the result of the purchase transaction.
type PurchaseTxResult struct {
	Purchase         Purchase    `json:"purchase"`
	BaseWallet       Wallet      `json:"base_wallet"`
	QuoteWallet      Wallet      `json:"quote_wallet"`
	BaseTransaction  Transaction `json:"base_transaction"`
	QuoteTransaction Transaction `json:"quote_transaction"`
}

// ListPurchasesParams is the input data to page through the purchases of a user.
type ListPurchasesParams struct {
	UserID uuid.UUID
	Limit  int32
	Offset int32
}
