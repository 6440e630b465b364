package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const wsTicketTTL = 30 * time.Second

// IssueWSTicket handles POST /api/ws/ticket. Tickets are short-lived and
// single-use; the websocket endpoint consumes them in AuthRequired.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(fmt.Errorf("ticket store unavailable")))
	}

	ticket := uuid.NewString()
	key := fmt.Sprintf("ws_ticket:%s", ticket)
	if err := s.redis.Set(c.Context(), key, userID.String(), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// wsInbound is the client-to-server frame on the chat websocket.
type wsInbound struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversation_id"`
	Kinds          []string `json:"kinds,omitempty"`
	IsTyping       bool     `json:"is_typing,omitempty"`
}

// WebSocketChatHandler handles WebSocket connections for real-time chat
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		observability.ActiveWebSockets.Inc()
		defer observability.ActiveWebSockets.Dec()

		ctx := context.Background()

		// Get userID from context locals (set by AuthRequired middleware)
		userIDVal, ok := conn.Locals("userID").(string)
		if !ok || userIDVal == "" {
			log.Printf("WebSocket: unauthenticated connection attempt")
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}
		userID := models.UserID(userIDVal)

		if s.chatHub == nil {
			_ = conn.Close()
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			log.Printf("WebSocket: failed to register user %s: %v", userID, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.IncomingHandler = func(c *notifications.Client, message []byte) {
			var frame wsInbound
			if err := json.Unmarshal(message, &frame); err != nil {
				log.Printf("WebSocket: invalid frame from user %s", userID)
				return
			}

			convID, err := models.NewConversationID(frame.ConversationID)
			if err != nil {
				return
			}

			switch frame.Type {
			case "subscribe":
				// Verify participant membership before opening the stream
				if _, err := s.chatService.GetConversation(ctx, convID, userID); err != nil {
					resp, _ := json.Marshal(fiber.Map{"kind": "error", "error": err.Error()})
					c.TrySend(resp)
					return
				}
				for _, kind := range subscriptionKinds(frame.Kinds) {
					s.chatHub.Subscribe(c, convID, kind)
				}
				resp, _ := json.Marshal(fiber.Map{"kind": "subscribed", "conversation_id": convID})
				c.TrySend(resp)

			case "unsubscribe":
				for _, kind := range subscriptionKinds(frame.Kinds) {
					s.chatHub.Unsubscribe(c, convID, kind)
				}

			case "typing":
				// Limit typing signals to 10 per 10 seconds to prevent spam
				id := fmt.Sprintf("user:%s", userID)
				allowed, _ := middleware.CheckRateLimit(ctx, s.redis, "typing", id, 10, 10*time.Second)
				if !allowed {
					return // Silently drop spammy typing indicators
				}
				if err := s.chatService.SetTyping(ctx, convID, userID, frame.IsTyping); err != nil {
					log.Printf("WebSocket: typing signal rejected for user %s: %v", userID, err)
				}
			}
		}

		// Send welcome message
		welcome, _ := json.Marshal(fiber.Map{"kind": "connected", "user_id": userID})
		client.TrySend(welcome)

		// Start write pump in a goroutine
		go client.WritePump()

		// Read pump runs in the main handler goroutine (blocking)
		client.ReadPump()
	})
}

// subscriptionKinds validates the requested event kinds, defaulting to all
// three when none are given.
func subscriptionKinds(requested []string) []string {
	if len(requested) == 0 {
		return []string{notifications.KindMessage, notifications.KindTyping, notifications.KindStatus}
	}
	kinds := make([]string, 0, len(requested))
	for _, k := range requested {
		switch k {
		case notifications.KindMessage, notifications.KindTyping, notifications.KindStatus:
			kinds = append(kinds, k)
		}
	}
	return kinds
}
