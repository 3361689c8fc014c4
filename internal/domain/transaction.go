package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a wallet movement.
type TransactionType string

// Transaction types.
const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebt   TransactionType = "DEBT"
)

// TransactionStatus is the lifecycle state of a journal entry.
type TransactionStatus string

// Transaction statuses.
const (
	TransactionPending TransactionStatus = "PENDING"
	TransactionFailed  TransactionStatus = "FAILED"
	TransactionDone    TransactionStatus = "DONE"
)

// Transaction is an append-only journal entry of a wallet movement.
type Transaction struct {
	ID        uuid.UUID         `json:"id"`
	Amount    decimal.Decimal   `json:"amount"` // always positive, direction is Type
	Status    TransactionStatus `json:"status"`
	Type      TransactionType   `json:"type"`
	WalletID  uuid.UUID         `json:"wallet_id"`
	CreatedAt time.Time         `json:"created_at"`
}

// CreateTransactionParams is the input data to append a journal entry.
type CreateTransactionParams struct {
	WalletID uuid.UUID
	Amount   decimal.Decimal
	Type     TransactionType
	Status   TransactionStatus
}
