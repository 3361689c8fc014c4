// Package main runs the exchange API: purchases, wallets and the settlement outbox relay.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-petr/pet-exchange/cmd/httpserver"
	"github.com/go-petr/pet-exchange/internal/middleware"
	"github.com/go-petr/pet-exchange/internal/outboxrelay"
	"github.com/go-petr/pet-exchange/internal/outboxrepo"
	"github.com/go-petr/pet-exchange/internal/settlementqueue"
	"github.com/go-petr/pet-exchange/pkg/configpkg"
	"github.com/go-petr/pet-exchange/pkg/dbpkg"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}
	defer db.Close()

	writer := settlementqueue.NewWriter(config.KafkaBrokers, config.SettlementTopic)
	defer writer.Close()

	producer := settlementqueue.NewProducer(writer)

	server, err := httpserver.New(db, producer, logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	relay := outboxrelay.New(
		outboxrepo.NewRepoPGS(db),
		producer,
		config.OutboxPollInterval,
		config.OutboxGracePeriod,
		config.OutboxBatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	srv := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("address", config.ServerAddress).Msg("EXCHANGE API SERVER HAS STARTED")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		return relay.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("exchange api stopped")
	}

	logger.Info().Msg("EXCHANGE API SERVER HAS STOPPED")
}
