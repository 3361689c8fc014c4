package settlementqueue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-exchange/internal/domain"
	"github.com/go-petr/pet-exchange/pkg/errorspkg"
)

// MessageWriter is the part of kafka.Writer the queue needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer publishes settlement work items.
type Producer struct {
	writer MessageWriter
}

// NewProducer returns Producer writing with w.
func NewProducer(w MessageWriter) *Producer {
	return &Producer{
		writer: w,
	}
}

// Publish writes the work item keyed by its market id.
// Failures are retryable: the item stays in the outbox until it is published.
func (p *Producer) Publish(ctx context.Context, item domain.SettlementWorkItem) error {
	l := zerolog.Ctx(ctx)

	value, err := json.Marshal(item)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(int64(item.MarketID), 10)),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		l.Error().Err(err).Str("purchase_id", item.PurchaseID.String()).Msg("publish settlement work item")
		return errorspkg.Retryable(err)
	}

	return nil
}
