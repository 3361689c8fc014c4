package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement is a per-market bucket that accumulates purchased amounts
// until they are bought from the external exchange in one order.
//
// A market has at most one active bucket. A retired bucket has a TransactionCode.
//
// OrderAmount is fixed when the bucket is first sent to the exchange and every
// retry resends exactly it. Purchases accounted later still grow Amount; the
// excess moves to the next bucket when the order is confirmed.
type Settlement struct {
	ID              int64           `json:"id"`
	TransactionCode string          `json:"transaction_code,omitempty"`
	Active          bool            `json:"active"`
	Amount          decimal.Decimal `json:"amount"`
	OrderAmount     decimal.Decimal `json:"order_amount"`
	MarketID        int32           `json:"market_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Ordered reports whether the bucket's order amount is fixed.
func (s Settlement) Ordered() bool {
	return s.OrderAmount.IsPositive()
}

// SettlementWorkItem asks the aggregator to account one purchase.
type SettlementWorkItem struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	MarketID   int32     `json:"-"`
}

// SettlementOrder is what the external exchange is asked to buy.
// Reference identifies the bucket and is stable across retries.
type SettlementOrder struct {
	Reference    string
	MarketSymbol string
	Amount       decimal.Decimal
}

// SettlementResult describes what handling a work item did.
type SettlementResult struct {
	Settlement Settlement
	// Duplicate is set when the purchase was already accounted.
	Duplicate bool
	// Skipped is set when the purchase is not in a settleable state.
	Skipped bool
	// Flushed is set when the bucket was retired by this call.
	Flushed bool
}

// OutboxEntry is a work item that was committed with its purchase but may not be published yet.
type OutboxEntry struct {
	PurchaseID   uuid.UUID
	MarketID     int32
	CreatedAt    time.Time
	DispatchedAt time.Time
}

// WorkItem returns the settlement work item for the entry.
func (e OutboxEntry) WorkItem() SettlementWorkItem {
	return SettlementWorkItem{PurchaseID: e.PurchaseID, MarketID: e.MarketID}
}
