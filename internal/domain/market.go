package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is a pair where base currency is bought for quote currency at Price.
type Market struct {
	ID              int32           `json:"id"`
	Name            string          `json:"name"`
	Symbol          string          `json:"symbol"`
	Active          bool            `json:"active"`
	Price           decimal.Decimal `json:"price"`
	BaseCurrencyID  int32           `json:"base_currency_id"`
	QuoteCurrencyID int32           `json:"quote_currency_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

// CreateMarketParams is the input data to create a market.
type CreateMarketParams struct {
	Name            string
	Symbol          string
	Price           decimal.Decimal
	BaseCurrencyID  int32
	QuoteCurrencyID int32
}
