// Package settlementqueue carries settlement work items from the purchase
// executor to the settlement worker over Kafka.
package settlementqueue

import (
	"time"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a synchronous writer. Messages with the same key land
// on the same partition, so work items of one market keep their order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewReader returns a consumer group reader that commits offsets only when
// CommitMessages is called.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})
}
