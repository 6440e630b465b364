package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"parley/internal/models"

	"github.com/gofiber/websocket/v2"
)

const maxConnsPerUser = 8

// ChatHub manages WebSocket connections and their per-conversation
// subscriptions. A subscription is scoped to a (client, conversation,
// event kind) tuple; a client only receives the kinds it asked for.
type ChatHub struct {
	mu sync.RWMutex

	// conversationID -> client -> subscribed kinds
	convSubs map[models.ConversationID]map[*Client]map[string]struct{}

	// client -> conversationIDs it subscribes to (reverse index for cleanup)
	clientConvs map[*Client]map[models.ConversationID]struct{}

	// userID -> set of active clients (multi-device support)
	userConns map[models.UserID]map[*Client]struct{}
}

// NewChatHub creates a new ChatHub instance
func NewChatHub() *ChatHub {
	return &ChatHub{
		convSubs:    make(map[models.ConversationID]map[*Client]map[string]struct{}),
		clientConvs: make(map[*Client]map[models.ConversationID]struct{}),
		userConns:   make(map[models.UserID]map[*Client]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *ChatHub) Name() string { return "chat hub" }

// Register registers a user's websocket connection. Returns the Client or
// an error if the per-user connection limit is exceeded.
func (h *ChatHub) Register(userID models.UserID, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.userConns[userID] == nil {
		h.userConns[userID] = make(map[*Client]struct{})
	}
	if len(h.userConns[userID]) >= maxConnsPerUser {
		return nil, fmt.Errorf("user connection limit reached")
	}

	client := NewClient(h, conn, userID)
	h.userConns[userID][client] = struct{}{}
	h.clientConvs[client] = make(map[models.ConversationID]struct{})

	return client, nil
}

// UnregisterClient removes a connection and all its subscriptions.
func (h *ChatHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.userConns[client.UserID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.userConns, client.UserID)
		}
	}

	for convID := range h.clientConvs[client] {
		if subs, ok := h.convSubs[convID]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.convSubs, convID)
			}
		}
	}
	delete(h.clientConvs, client)
}

// Subscribe adds a (client, conversation, kind) subscription.
func (h *ChatHub) Subscribe(client *Client, convID models.ConversationID, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clientConvs[client]; !ok {
		return // client already unregistered
	}

	if h.convSubs[convID] == nil {
		h.convSubs[convID] = make(map[*Client]map[string]struct{})
	}
	if h.convSubs[convID][client] == nil {
		h.convSubs[convID][client] = make(map[string]struct{})
	}
	h.convSubs[convID][client][kind] = struct{}{}
	h.clientConvs[client][convID] = struct{}{}
}

// Unsubscribe removes a (client, conversation, kind) subscription.
func (h *ChatHub) Unsubscribe(client *Client, convID models.ConversationID, kind string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.convSubs[convID]
	if !ok {
		return
	}
	if kinds, ok := subs[client]; ok {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(subs, client)
			if convs, ok := h.clientConvs[client]; ok {
				delete(convs, convID)
			}
		}
	}
	if len(subs) == 0 {
		delete(h.convSubs, convID)
	}
}

// Broadcast pushes an event to every client subscribed to the event's
// conversation and kind. Typing events are never echoed back to the user
// who produced them: self-exclusion is applied here, on the subscriber
// side, not at publish time.
func (h *ChatHub) Broadcast(event RealtimeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs, ok := h.convSubs[event.ConversationID]
	if !ok {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ChatHub: failed to marshal event: %v", err)
		return
	}

	for client, kinds := range subs {
		if _, subscribed := kinds[event.Kind]; !subscribed {
			continue
		}
		if event.Kind == KindTyping && client.UserID == event.UserID {
			continue
		}
		client.TrySend(payload)
	}
}

// IsUserOnline returns true when the user has at least one active client.
func (h *ChatHub) IsUserOnline(userID models.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// SubscriberCount returns the number of clients subscribed to a
// conversation for any kind.
func (h *ChatHub) SubscriberCount(convID models.ConversationID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.convSubs[convID])
}

// StartWiring connects the hub to the Redis fan-out subscriber.
func (h *ChatHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(_ string, _ models.ConversationID, event RealtimeEvent) {
		h.Broadcast(event)
	})
}

// Shutdown gracefully closes all websocket connections
func (h *ChatHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if err := client.Conn.WriteMessage(websocket.TextMessage,
				[]byte(`{"kind":"server_shutdown"}`)); err != nil {
				log.Printf("failed to write shutdown message for user %s: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %s: %v", userID, err)
			}
		}
	}

	h.convSubs = make(map[models.ConversationID]map[*Client]map[string]struct{})
	h.clientConvs = make(map[*Client]map[models.ConversationID]struct{})
	h.userConns = make(map[models.UserID]map[*Client]struct{})

	return nil
}
