package service

import (
	"context"
	"strings"

	"parley/internal/models"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	// Upper bound on conversations considered when scoping a content search
	// to the requesting user's conversations.
	searchScopeLimit = 500
)

// normalizePagination applies the default page size and clamps out-of-range
// values.
func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetConversation returns a conversation the user participates in.
func (s *ChatService) GetConversation(ctx context.Context, convID models.ConversationID, userID models.UserID) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}
	return conv, nil
}

// ListConversations returns the user's conversations ordered by most recent
// message first.
func (s *ChatService) ListConversations(ctx context.Context, userID models.UserID, limit, offset int) ([]*models.Conversation, error) {
	limit, offset = normalizePagination(limit, offset)
	return s.conversations.ListForUser(ctx, userID, limit, offset)
}

// GetMessages returns a conversation's messages, newest first. The requester
// must be a participant.
func (s *ChatService) GetMessages(ctx context.Context, convID models.ConversationID, userID models.UserID, limit, offset int) ([]*models.Message, error) {
	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(userID) {
		return nil, models.NewForbiddenError("You are not a participant in this conversation")
	}

	limit, offset = normalizePagination(limit, offset)
	return s.messages.ListByConversation(ctx, convID, limit, offset)
}

// SearchMessages searches message content across the conversations the user
// participates in. Results are newest first.
func (s *ChatService) SearchMessages(ctx context.Context, userID models.UserID, term string, limit, offset int) ([]*models.Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, models.NewValidationError("Search term is required")
	}

	convs, err := s.conversations.ListForUser(ctx, userID, searchScopeLimit, 0)
	if err != nil {
		return nil, err
	}
	convIDs := make([]models.ConversationID, len(convs))
	for i, c := range convs {
		convIDs[i] = c.ID
	}

	limit, offset = normalizePagination(limit, offset)
	return s.messages.SearchContent(ctx, convIDs, term, limit, offset)
}

// SearchConversations searches group conversation names among the user's own
// conversations.
func (s *ChatService) SearchConversations(ctx context.Context, userID models.UserID, term string, limit, offset int) ([]*models.Conversation, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, models.NewValidationError("Search term is required")
	}

	limit, offset = normalizePagination(limit, offset)
	return s.conversations.SearchByName(ctx, userID, term, limit, offset)
}
