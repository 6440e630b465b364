// Package events integrates with the Kafka event log: publishing domain
// events drained from the outbox and consuming identity events from the
// upstream service.
package events

import (
	"context"
	"encoding/json"

	"parley/internal/models"

	"github.com/segmentio/kafka-go"
)

// Publisher writes domain event envelopes to the event log. Messages are
// keyed by aggregate id so events for one aggregate stay ordered within a
// partition.
type Publisher interface {
	Publish(ctx context.Context, topic string, env models.EventEnvelope) error
	Close() error
}

type kafkaBus struct {
	writer *kafka.Writer
}

// NewKafkaBus creates a Publisher backed by the given brokers. The topic is
// chosen per message, so one writer serves both the user and chat streams.
func NewKafkaBus(brokers []string) Publisher {
	return &kafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (b *kafkaBus) Publish(ctx context.Context, topic string, env models.EventEnvelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(env.AggregateID),
		Value: value,
	})
}

func (b *kafkaBus) Close() error {
	return b.writer.Close()
}
