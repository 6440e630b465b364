package server

import (
	"parley/internal/models"
	"parley/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	profile, err := s.userService.GetProfile(ctx, userID.String())
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(profile)
}

// UpdateMyProfile handles PUT /api/users/me
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		DisplayName *string `json:"display_name,omitempty"`
		Bio         *string `json:"bio,omitempty"`
		AvatarURL   *string `json:"avatar_url,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	profile, err := s.userService.UpdateProfile(ctx, userID.String(), service.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(profile)
}

// UpdateMyStatus handles PUT /api/users/me/status
func (s *Server) UpdateMyStatus(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		Status string `json:"status"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	profile, err := s.userService.UpdateStatus(ctx, userID.String(), models.ProfileStatus(req.Status))
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(profile)
}

// GetUserProfile handles GET /api/users/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := models.NewUserID(c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	profile, svcErr := s.userService.GetProfile(ctx, id.String())
	if svcErr != nil {
		return respondServiceError(c, svcErr)
	}

	return c.JSON(profile)
}

// SearchUsers handles GET /api/users/search
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := parsePagination(c, defaultPageLimit)

	profiles, err := s.userService.SearchProfiles(ctx, c.Query("q"), page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(profiles)
}

// UpdatePresence handles PUT /api/presence
func (s *Server) UpdatePresence(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUserID(c)

	var req struct {
		Status        string `json:"status"`
		StatusMessage string `json:"status_message,omitempty"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	presence, err := s.userService.UpdatePresence(ctx, userID, models.PresenceStatus(req.Status), req.StatusMessage)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(presence)
}

// GetPresence handles GET /api/presence/:id
func (s *Server) GetPresence(c *fiber.Ctx) error {
	ctx := c.UserContext()

	id, err := models.NewUserID(c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	presence, svcErr := s.userService.GetPresence(ctx, id)
	if svcErr != nil {
		return respondServiceError(c, svcErr)
	}

	return c.JSON(presence)
}

// GetMultiplePresences handles POST /api/presence/batch
func (s *Server) GetMultiplePresences(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if parseErr := c.BodyParser(&req); parseErr != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	userIDs := make([]models.UserID, 0, len(req.UserIDs))
	for _, raw := range req.UserIDs {
		id, err := models.NewUserID(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, err)
		}
		userIDs = append(userIDs, id)
	}

	presences, err := s.userService.GetMultiplePresences(ctx, userIDs)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(presences)
}

// GetFeatureFlags handles GET /api/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	userID := currentUserID(c)
	return c.JSON(s.featureFlags.Snapshot(userID.String()))
}
