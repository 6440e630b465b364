package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"parley/internal/middleware"
	"parley/internal/models"

	"github.com/segmentio/kafka-go"
)

// IdentityHandler reacts to identity lifecycle events from the upstream
// service. Handlers must be idempotent: the consumer commits offsets after
// handling, so a crash in between redelivers.
type IdentityHandler interface {
	HandleIdentityRegistered(ctx context.Context, authID string, fields IdentityRegisteredFields) error
	HandleIdentityDeleted(ctx context.Context, authID string) error
}

// IdentityRegisteredFields carries the profile seed data from an
// identity.registered event.
type IdentityRegisteredFields struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// IdentityConsumer reads the user event stream and dispatches identity
// events to the handler. Unknown event types are skipped.
type IdentityConsumer struct {
	reader  *kafka.Reader
	handler IdentityHandler
}

// NewIdentityConsumer creates a consumer group reader on the user topic.
func NewIdentityConsumer(brokers []string, topic, groupID string, handler IdentityHandler) *IdentityConsumer {
	return &IdentityConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		handler: handler,
	}
}

// Run consumes until ctx is done. A handler failure leaves the offset
// uncommitted so the event is redelivered.
func (c *IdentityConsumer) Run(ctx context.Context) {
	defer func() { _ = c.reader.Close() }()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			middleware.Logger.ErrorContext(ctx, "identity consumer fetch failed", "error", err)
			continue
		}

		if err := c.dispatch(ctx, msg.Value); err != nil {
			middleware.Logger.ErrorContext(ctx, "identity event handling failed",
				"partition", msg.Partition, "offset", msg.Offset, "error", err)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			middleware.Logger.WarnContext(ctx, "identity consumer commit failed", "error", err)
		}
	}
}

func (c *IdentityConsumer) dispatch(ctx context.Context, value []byte) error {
	var env models.EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		// A malformed envelope will never parse; log and move on.
		middleware.Logger.WarnContext(ctx, "skipping malformed identity event", "error", err)
		return nil
	}

	switch env.Type {
	case models.EventIdentityRegistered:
		var fields IdentityRegisteredFields
		if err := json.Unmarshal(env.Fields, &fields); err != nil {
			middleware.Logger.WarnContext(ctx, "skipping identity.registered with bad fields",
				"aggregate_id", env.AggregateID, "error", err)
			return nil
		}
		return c.handler.HandleIdentityRegistered(ctx, env.AggregateID, fields)
	case models.EventIdentityDeleted:
		return c.handler.HandleIdentityDeleted(ctx, env.AggregateID)
	default:
		return nil
	}
}
