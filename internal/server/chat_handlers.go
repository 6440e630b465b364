package server

import (
	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
)

// CreateConversation handles POST /api/conversations
func (s *Server) CreateConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		Type         string   `json:"type"`
		Participants []string `json:"participants"`
		Name         string   `json:"name,omitempty"`
		Description  string   `json:"description,omitempty"`
		Avatar       string   `json:"avatar,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	participants := make([]models.UserID, 0, len(req.Participants))
	for _, raw := range req.Participants {
		id, err := models.NewUserID(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, err)
		}
		participants = append(participants, id)
	}

	conv, err := s.chatService.CreateConversation(ctx, models.NewConversationInput{
		Type:         models.ConversationType(req.Type),
		Participants: participants,
		CreatorID:    userID,
		Name:         req.Name,
		Description:  req.Description,
		Avatar:       req.Avatar,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conv)
}

// GetConversations handles GET /api/conversations
func (s *Server) GetConversations(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	page := parsePagination(c, defaultPageLimit)

	conversations, err := s.chatService.ListConversations(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conversations)
}

// GetConversation handles GET /api/conversations/:id
func (s *Server) GetConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	conv, err := s.chatService.GetConversation(ctx, convID, userID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conv)
}

// UpdateConversation handles PUT /api/conversations/:id
func (s *Server) UpdateConversation(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Avatar      string `json:"avatar"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	conv, err := s.chatService.UpdateConversationMetadata(ctx, convID, userID, req.Name, req.Description, req.Avatar)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conv)
}

// SearchConversations handles GET /api/conversations/search
func (s *Server) SearchConversations(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	page := parsePagination(c, defaultPageLimit)

	conversations, err := s.chatService.SearchConversations(ctx, userID, c.Query("q"), page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(conversations)
}

// GetMessages handles GET /api/conversations/:id/messages
func (s *Server) GetMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}
	page := parsePagination(c, defaultPageLimit)

	messages, err := s.chatService.GetMessages(ctx, convID, userID, page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(messages)
}

// SendMessage handles POST /api/conversations/:id/messages
func (s *Server) SendMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Content     string              `json:"content"`
		Type        string              `json:"type,omitempty"`
		ReplyTo     string              `json:"reply_to,omitempty"`
		Attachments []models.Attachment `json:"attachments,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.chatService.SendMessage(ctx, models.NewMessageInput{
		ConversationID: convID,
		SenderID:       userID,
		Content:        req.Content,
		Type:           models.MessageType(req.Type),
		ReplyTo:        models.MessageID(req.ReplyTo),
		Attachments:    req.Attachments,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// SearchMessages handles GET /api/messages/search
func (s *Server) SearchMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	page := parsePagination(c, defaultPageLimit)

	messages, err := s.chatService.SearchMessages(ctx, userID, c.Query("q"), page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(messages)
}

// UpdateMessage handles PUT /api/messages/:id
func (s *Server) UpdateMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	messageID, err := s.parseMessageID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Content string `json:"content"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	message, err := s.chatService.UpdateMessage(ctx, messageID, userID, req.Content)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(message)
}

// DeleteMessage handles DELETE /api/messages/:id
func (s *Server) DeleteMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	messageID, err := s.parseMessageID(c)
	if err != nil {
		return nil
	}

	if err := s.chatService.DeleteMessage(ctx, messageID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// MarkDelivered handles POST /api/messages/:id/delivered
func (s *Server) MarkDelivered(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	messageID, err := s.parseMessageID(c)
	if err != nil {
		return nil
	}

	if err := s.chatService.MarkDelivered(ctx, messageID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// MarkRead handles POST /api/messages/:id/read
func (s *Server) MarkRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	messageID, err := s.parseMessageID(c)
	if err != nil {
		return nil
	}

	if err := s.chatService.MarkRead(ctx, messageID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// AddParticipants handles POST /api/conversations/:id/participants
func (s *Server) AddParticipants(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	userIDs, err := s.parseParticipantBody(c)
	if err != nil {
		return nil
	}

	conv, svcErr := s.chatService.AddParticipants(ctx, convID, userID, userIDs)
	if svcErr != nil {
		return respondServiceError(c, svcErr)
	}

	return c.JSON(conv)
}

// RemoveParticipants handles DELETE /api/conversations/:id/participants
func (s *Server) RemoveParticipants(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	userIDs, err := s.parseParticipantBody(c)
	if err != nil {
		return nil
	}

	conv, svcErr := s.chatService.RemoveParticipants(ctx, convID, userID, userIDs)
	if svcErr != nil {
		return respondServiceError(c, svcErr)
	}

	return c.JSON(conv)
}

// Typing handles POST /api/conversations/:id/typing
func (s *Server) Typing(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)
	convID, err := s.parseConversationID(c)
	if err != nil {
		return nil
	}

	var req struct {
		Started bool `json:"started"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.chatService.SetTyping(ctx, convID, userID, req.Started); err != nil {
		return respondServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// parseParticipantBody reads a {"user_ids": [...]} body. On failure it
// writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseParticipantBody(c *fiber.Ctx) ([]models.UserID, error) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return nil, errResponseWritten
	}

	userIDs := make([]models.UserID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := models.NewUserID(raw)
		if err != nil {
			_ = models.RespondWithError(c, fiber.StatusBadRequest, err)
			return nil, errResponseWritten
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, nil
}
