// Package service contains the command and query handlers for the chat and
// user domains. Handlers follow a fixed protocol: validate identifiers, load
// aggregates, authorize, mutate in memory, persist, then emit events.
package service

import (
	"context"

	"parley/internal/featureflags"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/notifications"
	"parley/internal/repository"
)

// ChatService handles conversation and message commands and queries.
//
// Durable domain events go through the outbox in the same flow as the state
// change; the relay publishes them to the event log. Real-time fan-out is
// fire-and-forget: a publish failure after a committed write is logged and
// counted, never surfaced as a command failure.
type ChatService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	outbox        repository.OutboxRepository
	notifier      *notifications.Notifier
	flags         *featureflags.Manager
	chatTopic     string
}

// NewChatService creates a ChatService with its persistence and fan-out
// collaborators.
func NewChatService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	outbox repository.OutboxRepository,
	notifier *notifications.Notifier,
	flags *featureflags.Manager,
	chatTopic string,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		outbox:        outbox,
		notifier:      notifier,
		flags:         flags,
		chatTopic:     chatTopic,
	}
}

// CreateConversation creates a private or group conversation. The creator is
// always a participant. Creating a second private conversation between the
// same pair of users fails with a conflict, regardless of participant order.
func (s *ChatService) CreateConversation(ctx context.Context, in models.NewConversationInput) (*models.Conversation, error) {
	conv, err := models.NewConversation(in)
	if err != nil {
		return nil, err
	}

	if conv.Type == models.ConversationPrivate {
		existing, err := s.conversations.FindPrivateBetween(ctx, conv.Participants[0], conv.Participants[1])
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, models.NewConflictError("A private conversation between these users already exists")
		}
	}

	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventConversationCreated, conv.ID.String(), map[string]any{
		"type":         conv.Type,
		"participants": conv.Participants,
		"createdBy":    conv.CreatedBy,
	}))

	return conv, nil
}

// SendMessage posts a message into a conversation. The sender must already
// be a participant; there is no auto-join.
//
// The message insert and the conversation last-message pointer are two
// writes with no shared transaction. The pointer update here is best-effort;
// the outbox relay re-asserts it when it publishes the sent event, so a lost
// pointer write heals on the next drain.
func (s *ChatService) SendMessage(ctx context.Context, in models.NewMessageInput) (*models.Message, error) {
	conv, err := s.conversations.FindByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(in.SenderID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}

	msg, err := models.NewMessage(in)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventMessageSent, msg.ID.String(), map[string]any{
		"conversationId": msg.ConversationID,
		"senderId":       msg.SenderID,
		"messageType":    msg.Type,
		"createdAt":      msg.CreatedAt,
	}))

	if err := s.conversations.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		middleware.Logger.WarnContext(ctx, "last-message pointer update failed, relay will repair",
			"conversation_id", conv.ID, "message_id", msg.ID, "error", err)
	}

	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindMessage,
		ConversationID: msg.ConversationID,
		UserID:         msg.SenderID,
		Payload:        msg,
	})

	return msg, nil
}

// UpdateMessage edits a message's content. Only the sender may edit.
func (s *ChatService) UpdateMessage(ctx context.Context, messageID models.MessageID, userID models.UserID, content string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.CanBeEditedBy(userID) {
		return nil, models.NewForbiddenError("Only the sender can edit a message")
	}
	if err := msg.UpdateContent(content); err != nil {
		return nil, err
	}
	if err := s.messages.Save(ctx, msg); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventMessageUpdated, msg.ID.String(), map[string]any{
		"conversationId": msg.ConversationID,
		"updatedAt":      msg.UpdatedAt,
	}))

	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindMessage,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Payload:        map[string]any{"action": "updated", "message": msg},
	})

	return msg, nil
}

// DeleteMessage hard-deletes a message. Only the sender may delete.
func (s *ChatService) DeleteMessage(ctx context.Context, messageID models.MessageID, userID models.UserID) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.CanBeDeletedBy(userID) {
		return models.NewForbiddenError("Only the sender can delete a message")
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventMessageDeleted, messageID.String(), map[string]any{
		"conversationId": msg.ConversationID,
	}))

	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindMessage,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Payload:        map[string]any{"action": "deleted", "message_id": messageID},
	})

	return nil
}

// AddParticipants adds users to a group conversation. The requester must
// already be a participant; adding an existing participant is a no-op.
func (s *ChatService) AddParticipants(ctx context.Context, convID models.ConversationID, requesterID models.UserID, userIDs []models.UserID) (*models.Conversation, error) {
	if len(userIDs) == 0 {
		return nil, models.NewValidationError("At least one participant is required")
	}

	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(requesterID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}

	for _, id := range userIDs {
		if err := conv.AddParticipant(id); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventParticipantsAdded, conv.ID.String(), map[string]any{
		"addedBy": requesterID,
		"userIds": userIDs,
	}))

	return conv, nil
}

// RemoveParticipants removes users from a group conversation. The requester
// must be a participant; removing an absent user is a no-op, and removing
// the last participant fails.
func (s *ChatService) RemoveParticipants(ctx context.Context, convID models.ConversationID, requesterID models.UserID, userIDs []models.UserID) (*models.Conversation, error) {
	if len(userIDs) == 0 {
		return nil, models.NewValidationError("At least one participant is required")
	}

	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(requesterID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}

	for _, id := range userIDs {
		if err := conv.RemoveParticipant(id); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventParticipantsRemoved, conv.ID.String(), map[string]any{
		"removedBy": requesterID,
		"userIds":   userIDs,
	}))

	return conv, nil
}

// UpdateConversationMetadata changes a group conversation's name,
// description, and avatar.
func (s *ChatService) UpdateConversationMetadata(ctx context.Context, convID models.ConversationID, requesterID models.UserID, name, description, avatar string) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(requesterID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}
	if err := conv.UpdateMetadata(name, description, avatar); err != nil {
		return nil, err
	}
	if err := s.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventConversationMetaUpdated, conv.ID.String(), map[string]any{
		"updatedBy": requesterID,
		"name":      name,
	}))

	return conv, nil
}

// MarkDelivered records a delivery receipt. Receipts require participant
// membership in the message's conversation. Repeated calls for the same
// (message, user) pair are no-ops.
func (s *ChatService) MarkDelivered(ctx context.Context, messageID models.MessageID, userID models.UserID) error {
	msg, conv, err := s.loadMessageWithConversation(ctx, messageID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return models.NewForbiddenError("You are not a participant in this conversation")
	}
	if msg.IsDeliveredTo(userID) {
		return nil
	}

	msg.MarkDeliveredTo(userID)
	if err := s.messages.Save(ctx, msg); err != nil {
		return err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventMessageDelivered, msg.ID.String(), map[string]any{
		"conversationId": msg.ConversationID,
		"userId":         userID,
	}))

	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindStatus,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Payload:        map[string]any{"status": "delivered", "message_id": msg.ID},
	})

	return nil
}

// MarkRead records a read receipt, which implies delivery. Receipts require
// participant membership; repeated calls are no-ops.
func (s *ChatService) MarkRead(ctx context.Context, messageID models.MessageID, userID models.UserID) error {
	msg, conv, err := s.loadMessageWithConversation(ctx, messageID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return models.NewForbiddenError("You are not a participant in this conversation")
	}
	if msg.IsReadBy(userID) {
		return nil
	}

	msg.MarkReadBy(userID)
	if err := s.messages.Save(ctx, msg); err != nil {
		return err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventMessageRead, msg.ID.String(), map[string]any{
		"conversationId": msg.ConversationID,
		"userId":         userID,
	}))

	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindStatus,
		ConversationID: msg.ConversationID,
		UserID:         userID,
		Payload:        map[string]any{"status": "read", "message_id": msg.ID},
	})

	return nil
}

// SetTyping publishes a typing start/stop signal. Typing is ephemeral: it
// goes to the real-time fan-out only, never to the durable event log. Gated
// by the typing_indicators feature flag.
func (s *ChatService) SetTyping(ctx context.Context, convID models.ConversationID, userID models.UserID, started bool) error {
	if !s.flags.Enabled("typing_indicators", userID.String()) {
		return nil
	}

	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(userID) {
		return models.NewForbiddenError("You are not a participant in this conversation")
	}

	eventType := models.EventTypingStarted
	if !started {
		eventType = models.EventTypingStopped
	}
	s.notifier.PublishBestEffort(ctx, notifications.RealtimeEvent{
		Kind:           notifications.KindTyping,
		ConversationID: convID,
		UserID:         userID,
		Payload:        map[string]any{"event": eventType},
	})
	return nil
}

func (s *ChatService) loadMessageWithConversation(ctx context.Context, messageID models.MessageID) (*models.Message, *models.Conversation, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := s.conversations.FindByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// appendEvent writes a durable domain event to the outbox. A failure here is
// logged, not propagated: the state change already committed, and losing an
// event is preferable to reporting a failed command for a succeeded write.
func (s *ChatService) appendEvent(ctx context.Context, env models.EventEnvelope) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Append(ctx, s.chatTopic, env); err != nil {
		middleware.Logger.ErrorContext(ctx, "outbox append failed",
			"event_type", env.Type, "aggregate_id", env.AggregateID, "error", err)
	}
}
