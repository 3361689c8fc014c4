package exchangegateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-exchange/internal/domain"
)

// Simulator confirms every order without calling any exchange.
type Simulator struct{}

// Settle logs the order and returns a generated transaction code.
func (Simulator) Settle(ctx context.Context, order domain.SettlementOrder) (string, error) {
	code := "SIM-" + uuid.NewString()

	zerolog.Ctx(ctx).Info().
		Str("reference", order.Reference).
		Str("market", order.MarketSymbol).
		Str("amount", order.Amount.String()).
		Str("transaction_code", code).
		Msg("simulated exchange order")

	return code, nil
}
