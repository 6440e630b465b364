package events

import (
	"context"
	"encoding/json"
	"time"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"
)

const (
	relayInterval  = 2 * time.Second
	relayBatchSize = 100
)

// OutboxRelay drains the outbox into the event log. Entries are published
// at-least-once: an entry is only marked published after the broker
// acknowledges the write, so a crash between the two re-publishes it.
//
// The relay also repairs the conversation last-message pointer for
// message.sent events. The pointer update in the command path is
// best-effort; re-asserting it here closes the gap when that write was
// lost. UpdateLastMessage is idempotent and never moves backwards, so
// replays are harmless.
type OutboxRelay struct {
	outbox        repository.OutboxRepository
	conversations repository.ConversationRepository
	publisher     Publisher

	interval  time.Duration
	batchSize int
}

// NewOutboxRelay creates a relay with the default drain cadence.
func NewOutboxRelay(outbox repository.OutboxRepository, conversations repository.ConversationRepository, publisher Publisher) *OutboxRelay {
	return &OutboxRelay{
		outbox:        outbox,
		conversations: conversations,
		publisher:     publisher,
		interval:      relayInterval,
		batchSize:     relayBatchSize,
	}
}

// Run drains the outbox on a fixed cadence until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				middleware.Logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

// DrainOnce publishes one batch of pending entries. Publishing stops at the
// first broker failure so retry order stays oldest-first.
func (r *OutboxRelay) DrainOnce(ctx context.Context) error {
	entries, err := r.outbox.PendingBatch(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := r.publisher.Publish(ctx, entry.Topic, entry.Envelope); err != nil {
			observability.PublishFailures.WithLabelValues("outbox").Inc()
			break
		}
		if err := r.outbox.MarkPublished(ctx, entry.ID); err != nil {
			// Re-publication on the next pass is the accepted cost of
			// at-least-once delivery.
			middleware.Logger.WarnContext(ctx, "failed to mark outbox entry published",
				"entry_id", entry.ID, "error", err)
		}
		observability.OutboxPublished.WithLabelValues(entry.Topic).Inc()

		if entry.Envelope.Type == models.EventMessageSent {
			r.repairLastMessage(ctx, entry.Envelope)
		}
	}

	pending, err := r.outbox.CountPending(ctx)
	if err == nil {
		observability.OutboxPending.Set(float64(pending))
	}
	return nil
}

// messageSentFields is the subset of message.sent fields the relay needs.
type messageSentFields struct {
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (r *OutboxRelay) repairLastMessage(ctx context.Context, env models.EventEnvelope) {
	var fields messageSentFields
	if err := json.Unmarshal(env.Fields, &fields); err != nil || fields.ConversationID == "" {
		return
	}
	convID := models.ConversationID(fields.ConversationID)
	msgID := models.MessageID(env.AggregateID)
	if err := r.conversations.UpdateLastMessage(ctx, convID, msgID, fields.CreatedAt); err != nil {
		middleware.Logger.WarnContext(ctx, "last-message repair failed",
			"conversation_id", convID, "message_id", msgID, "error", err)
	}
}
