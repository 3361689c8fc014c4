// Package main runs the settlement worker: it aggregates purchased amounts per
// market and buys them from the external exchange.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-petr/pet-exchange/internal/exchangegateway"
	"github.com/go-petr/pet-exchange/internal/middleware"
	"github.com/go-petr/pet-exchange/internal/settlementqueue"
	"github.com/go-petr/pet-exchange/internal/settlementrepo"
	"github.com/go-petr/pet-exchange/internal/settlementservice"
	"github.com/go-petr/pet-exchange/pkg/configpkg"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	threshold, err := config.Threshold()
	if err != nil {
		logger.Fatal().Err(err).Str("threshold", config.SettlementThreshold).Msg("invalid settlement threshold")
	}

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}
	defer db.Close()

	var gateway settlementservice.Gateway = exchangegateway.Simulator{}

	if config.ExchangeURL != "" {
		gateway = exchangegateway.New(config.ExchangeURL, config.ExchangeAPIKey, config.ExchangeTimeout, config.ExchangeRateLimit)
	} else {
		logger.Warn().Msg("EXCHANGE_URL is empty, settlements are simulated")
	}

	service := settlementservice.New(
		settlementrepo.NewRepoPGS(db, config.SettlementLockTimeout),
		gateway,
		threshold,
	)

	reader := settlementqueue.NewReader(config.KafkaBrokers, config.SettlementTopic, config.SettlementGroupID)

	dlq := settlementqueue.NewWriter(config.KafkaBrokers, config.SettlementDLQ)
	defer dlq.Close()

	consumer := settlementqueue.NewConsumer(reader, dlq, service, config.SettlementWorkers, settlementqueue.RetryPolicy{
		MaxAttempts: config.SettlementMaxAttempts,
		BaseDelay:   config.SettlementRetryBase,
		MaxDelay:    config.SettlementRetryMax,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	logger.Info().Str("threshold", threshold.String()).Msg("SETTLEMENT WORKER HAS STARTED")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(gctx)
	})

	g.Go(func() error {
		flushDue(gctx, service, config.SettlementFlushEvery)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("settlement worker stopped")
	}

	logger.Info().Msg("SETTLEMENT WORKER HAS STOPPED")
}

// flushDue retries settlement of buckets that reached the threshold but were
// not confirmed by the exchange.
func flushDue(ctx context.Context, service *settlementservice.Service, every time.Duration) {
	l := zerolog.Ctx(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := service.FlushDue(ctx)
			if err != nil && ctx.Err() == nil {
				l.Warn().Err(err).Int("flushed", n).Msg("flush due settlements")
				continue
			}

			if n > 0 {
				l.Info().Int("flushed", n).Msg("flush due settlements")
			}
		}
	}
}
