// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"errors"

	"parley/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	defaultPageLimit   = 20
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// currentUserID returns the authenticated user id set by AuthRequired.
func currentUserID(c *fiber.Ctx) models.UserID {
	if uid, ok := c.Locals("userID").(string); ok {
		return models.UserID(uid)
	}
	return ""
}

// parseConversationID extracts the :id route parameter as a ConversationID.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseConversationID(c *fiber.Ctx) (models.ConversationID, error) {
	id, err := models.NewConversationID(c.Params("id"))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, err)
		return "", errResponseWritten
	}
	return id, nil
}

// parseMessageID extracts the :id route parameter as a MessageID.
// On failure it writes a 400 JSON response and returns errResponseWritten.
func (s *Server) parseMessageID(c *fiber.Ctx) (models.MessageID, error) {
	id, err := models.NewMessageID(c.Params("id"))
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest, err)
		return "", errResponseWritten
	}
	return id, nil
}

// respondServiceError maps a service-layer error onto the standard error
// response using the taxonomy status mapping.
func respondServiceError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}
