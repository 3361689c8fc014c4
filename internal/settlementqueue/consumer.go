package settlementqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// Dead letter headers.
const (
	HeaderError    = "error"
	HeaderAttempts = "attempts"
)

var errUndecodable = errors.New("undecodable settlement work item")

// MessageReader is the part of kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler settles one purchase. Errors wrapped by errorspkg.Retryable are retried.
//
//go:generate mockgen -destination handler_mock.go -package settlementqueue . Handler
type Handler interface {
	Settle(ctx context.Context, purchaseID uuid.UUID) (domain.SettlementResult, error)
}

// RetryPolicy bounds how often a work item is handled before it is dead-lettered.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Consumer reads work items and hands them to the handler.
//
// Messages of one partition are handled by one worker in offset order.
// An offset is committed only after its item was handled or dead-lettered,
// so an item is delivered at least once.
type Consumer struct {
	reader  MessageReader
	dlq     MessageWriter
	handler Handler
	workers int
	policy  RetryPolicy
}

// NewConsumer returns Consumer with the given number of workers.
func NewConsumer(reader MessageReader, dlq MessageWriter, handler Handler, workers int, policy RetryPolicy) *Consumer {
	if workers < 1 {
		workers = 1
	}

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return &Consumer{
		reader:  reader,
		dlq:     dlq,
		handler: handler,
		workers: workers,
		policy:  policy,
	}
}

// Run consumes until ctx is cancelled. Items in flight at shutdown are left
// uncommitted and redelivered later.
func (c *Consumer) Run(ctx context.Context) error {
	l := zerolog.Ctx(ctx)

	l.Info().Int("workers", c.workers).Msg("settlement consumer started")

	shards := make([]chan kafka.Message, c.workers)

	var wg sync.WaitGroup

	for i := range shards {
		shards[i] = make(chan kafka.Message, 1)

		wg.Add(1)

		go func(ch <-chan kafka.Message) {
			defer wg.Done()

			for msg := range ch {
				c.process(ctx, msg)
			}
		}(shards[i])
	}

	c.fetch(ctx, shards)

	for _, ch := range shards {
		close(ch)
	}

	wg.Wait()

	if err := c.reader.Close(); err != nil {
		l.Error().Err(err).Msg("close settlement reader")
		return err
	}

	l.Info().Msg("settlement consumer stopped")

	return nil
}

func (c *Consumer) fetch(ctx context.Context, shards []chan kafka.Message) {
	l := zerolog.Ctx(ctx)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			l.Error().Err(err).Msg("fetch settlement work item")

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}

			continue
		}

		select {
		case shards[msg.Partition%len(shards)] <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	if ctx.Err() != nil {
		return
	}

	l := zerolog.Ctx(ctx).With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()
	ctx = l.WithContext(ctx)

	var item domain.SettlementWorkItem
	if err := json.Unmarshal(msg.Value, &item); err != nil || item.PurchaseID == uuid.Nil {
		l.Error().Err(err).Msg("undecodable settlement work item")

		if c.deadLetter(ctx, msg, errUndecodable, 0) {
			c.commit(ctx, msg)
		}

		return
	}

	l = l.With().Str("purchase_id", item.PurchaseID.String()).Logger()
	ctx = l.WithContext(ctx)

	var attempts uint

	res, err := backoff.Retry(ctx, func() (domain.SettlementResult, error) {
		attempts++

		res, err := c.handler.Settle(ctx, item.PurchaseID)
		if err != nil && !errorspkg.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}

		return res, err
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxTries(c.policy.MaxAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			l.Warn().Err(err).Dur("retry_in", d).Msg("settlement attempt failed")
		}),
	)

	if ctx.Err() != nil {
		return
	}

	if err != nil {
		l.Error().Err(err).Uint("attempts", attempts).Msg("settlement work item failed")

		if c.deadLetter(ctx, msg, err, attempts) {
			c.commit(ctx, msg)
		}

		return
	}

	l.Info().
		Bool("duplicate", res.Duplicate).
		Bool("skipped", res.Skipped).
		Bool("flushed", res.Flushed).
		Int64("settlement_id", res.Settlement.ID).
		Msg("settlement work item handled")

	c.commit(ctx, msg)
}

func (c *Consumer) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()

	if c.policy.BaseDelay > 0 {
		b.InitialInterval = c.policy.BaseDelay
	}

	if c.policy.MaxDelay > 0 {
		b.MaxInterval = c.policy.MaxDelay
	}

	return b
}

// deadLetter reports whether the message was written to the dead letter topic.
// It gives up only when ctx is done.
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, attempts uint) bool {
	l := zerolog.Ctx(ctx)

	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: HeaderError, Value: []byte(cause.Error())},
			{Key: HeaderAttempts, Value: []byte(strconv.FormatUint(uint64(attempts), 10))},
		},
	}

	// Committing past an item that is not dead-lettered would lose it, so the
	// write is retried until it succeeds or the consumer stops.
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.dlq.WriteMessages(ctx, dead)
	},
		backoff.WithBackOff(c.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			l.Error().Err(err).Dur("retry_in", d).Msg("dead letter settlement work item")
		}),
	)
	if err != nil {
		return false
	}

	l.Warn().Err(cause).Msg("settlement work item dead-lettered")

	return true
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("commit settlement offset")
	}
}
