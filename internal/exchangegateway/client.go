// Package exchangegateway buys settled amounts on the external exchange.
package exchangegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

const (
	ordersPath   = "/v1/orders"
	apiKeyHeader = "X-API-Key"
	sideBuy      = "BUY"
)

type orderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Amount        decimal.Decimal `json:"amount"`
}

type orderResponse struct {
	TransactionCode string `json:"transaction_code"`
}

// Client places market orders on the exchange HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New returns Client sending at most requestsPerSecond orders per second.
func New(baseURL, apiKey string, timeout time.Duration, requestsPerSecond float64) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "exchange",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Rejected orders say nothing about the exchange being down.
			IsSuccessful: func(err error) bool {
				return err == nil || !errorspkg.IsRetryable(err)
			},
		}),
	}
}

// Settle places a buy order for the bucket and returns the exchange's transaction code.
// Order.Reference is sent as client order id so the exchange can drop repeated orders.
func (c *Client) Settle(ctx context.Context, order domain.SettlementOrder) (string, error) {
	l := zerolog.Ctx(ctx)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", errorspkg.Retryable(fmt.Errorf("%w: %v", domain.ErrGateway, err))
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, order)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			l.Warn().Err(err).Msg("exchange circuit open")
			return "", errorspkg.Retryable(fmt.Errorf("%w: %v", domain.ErrGateway, err))
		}

		return "", err
	}

	return res.(string), nil
}

func (c *Client) send(ctx context.Context, order domain.SettlementOrder) (string, error) {
	l := zerolog.Ctx(ctx)

	body, err := json.Marshal(orderRequest{
		ClientOrderID: order.Reference,
		Symbol:        order.MarketSymbol,
		Side:          sideBuy,
		Amount:        order.Amount,
	})
	if err != nil {
		l.Error().Err(err).Send()
		return "", errorspkg.ErrInternal
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		l.Error().Err(err).Send()
		return "", fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		l.Warn().Err(err).Msg("exchange request failed")
		return "", errorspkg.Retryable(fmt.Errorf("%w: %v", domain.ErrGateway, err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errorspkg.Retryable(fmt.Errorf("%w: %v", domain.ErrGateway, err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		l.Warn().Int("status", resp.StatusCode).Str("body", string(payload)).Msg("exchange unavailable")
		return "", errorspkg.Retryable(fmt.Errorf("%w: status %d", domain.ErrGateway, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		l.Error().Int("status", resp.StatusCode).Str("body", string(payload)).Msg("exchange rejected order")
		return "", fmt.Errorf("%w: status %d", domain.ErrGateway, resp.StatusCode)
	}

	var out orderResponse
	if err := json.Unmarshal(payload, &out); err != nil || out.TransactionCode == "" {
		l.Error().Err(err).Str("body", string(payload)).Msg("exchange response without transaction code")
		return "", fmt.Errorf("%w: no transaction code", domain.ErrGateway)
	}

	return out.TransactionCode, nil
}
