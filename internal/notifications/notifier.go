// Package notifications provides real-time event delivery: Redis pub/sub
// publishing keyed per conversation and a WebSocket hub fanning events out
// to subscribed clients.
package notifications

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"
	"strings"

	"parley/internal/models"
	"parley/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Event kinds carried over the fan-out channels. Channel names are
// "<kind>.<conversationID>" so a subscriber for a conversation receives
// exactly the events published for it, in publish order.
const (
	KindMessage = "message"
	KindTyping  = "typing"
	KindStatus  = "status"
)

// Channel derives the pub/sub channel name for an event kind and conversation.
func Channel(kind string, conversationID models.ConversationID) string {
	return kind + "." + conversationID.String()
}

// parseChannel splits a channel name back into kind and conversation id.
func parseChannel(channel string) (kind string, conversationID models.ConversationID, ok bool) {
	parts := strings.SplitN(channel, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], models.ConversationID(parts[1]), true
}

// RealtimeEvent is the payload published to conversation channels and
// pushed to WebSocket clients.
type RealtimeEvent struct {
	Kind           string                `json:"kind"`
	ConversationID models.ConversationID `json:"conversation_id"`
	UserID         models.UserID         `json:"user_id,omitempty"`
	Payload        interface{}           `json:"payload,omitempty"`
}

// Notifier publishes real-time events into per-conversation Redis channels.
// Publishing is fire-and-forget relative to the originating command: a
// failure is logged and counted, never propagated as a command failure.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish sends an event to its conversation channel.
func (n *Notifier) Publish(ctx context.Context, event RealtimeEvent) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, Channel(event.Kind, event.ConversationID), payload).Err()
}

// PublishBestEffort publishes and absorbs failures, logging them and
// incrementing the failure counter.
func (n *Notifier) PublishBestEffort(ctx context.Context, event RealtimeEvent) {
	if err := n.Publish(ctx, event); err != nil {
		observability.PublishFailures.WithLabelValues(event.Kind).Inc()
		log.Printf("realtime publish failed (kind=%s conversation=%s): %v", event.Kind, event.ConversationID, err)
	}
}

// StartSubscriber subscribes to all conversation channels and calls
// onEvent for each incoming message until ctx is done.
func (n *Notifier) StartSubscriber(ctx context.Context, onEvent func(kind string, conversationID models.ConversationID, event RealtimeEvent)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, KindMessage+".*", KindTyping+".*", KindStatus+".*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in fan-out subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					kind, convID, ok := parseChannel(msg.Channel)
					if !ok {
						log.Printf("fan-out: invalid channel format: %s", msg.Channel)
						return
					}
					var event RealtimeEvent
					if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
						log.Printf("fan-out: failed to parse event from channel %s: %v", msg.Channel, err)
						return
					}
					if event.Kind == "" {
						event.Kind = kind
					}
					event.ConversationID = convID
					onEvent(kind, convID, event)
				}()
			}
		}
	}()

	return nil
}
