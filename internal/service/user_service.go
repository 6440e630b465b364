package service

import (
	"context"
	"strings"
	"time"

	"parley/internal/cache"
	"parley/internal/events"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/repository"

	"github.com/google/uuid"
)

// UserService handles profile, search, and presence operations. Profiles are
// created and deleted by upstream identity events, not by direct API calls.
// Reads go through the cache-aside helper; writes invalidate.
type UserService struct {
	profiles  repository.ProfileRepository
	presence  repository.PresenceStore
	outbox    repository.OutboxRepository
	userTopic string
}

// NewUserService creates a UserService.
func NewUserService(profiles repository.ProfileRepository, presence repository.PresenceStore, outbox repository.OutboxRepository, userTopic string) *UserService {
	return &UserService{
		profiles:  profiles,
		presence:  presence,
		outbox:    outbox,
		userTopic: userTopic,
	}
}

// HandleIdentityRegistered creates a profile for a newly registered
// identity. Idempotent against redelivery: an existing profile for the same
// auth id is left untouched.
func (s *UserService) HandleIdentityRegistered(ctx context.Context, authID string, fields events.IdentityRegisteredFields) error {
	if existing, err := s.profiles.GetByAuthID(ctx, authID); err == nil && existing != nil {
		return nil
	} else if err != nil && models.ErrorCode(err) != models.CodeNotFound {
		return err
	}

	username := strings.TrimSpace(fields.Username)
	if username == "" {
		middleware.Logger.WarnContext(ctx, "identity.registered without username, skipping", "auth_id", authID)
		return nil
	}
	displayName := strings.TrimSpace(fields.DisplayName)
	if displayName == "" {
		displayName = username
	}

	profile := &models.Profile{
		ID:          uuid.NewString(),
		AuthID:      authID,
		Username:    username,
		DisplayName: displayName,
		Status:      models.StatusOffline,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		if models.ErrorCode(err) == models.CodeConflict {
			// Username collision with another identity. Surfacing the error
			// would wedge the consumer on an unprocessable event.
			middleware.Logger.ErrorContext(ctx, "username already taken for registered identity",
				"auth_id", authID, "username", username)
			return nil
		}
		return err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventProfileCreated, profile.ID, map[string]any{
		"authId":   authID,
		"username": username,
	}))
	cache.InvalidateSearches(ctx)
	return nil
}

// HandleIdentityDeleted removes the profile and all cached entries for a
// deleted identity. Idempotent against redelivery.
func (s *UserService) HandleIdentityDeleted(ctx context.Context, authID string) error {
	profile, err := s.profiles.GetByAuthID(ctx, authID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return nil
		}
		return err
	}

	if err := s.profiles.Delete(ctx, profile.ID); err != nil && models.ErrorCode(err) != models.CodeNotFound {
		return err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventProfileDeleted, profile.ID, map[string]any{
		"authId": authID,
	}))

	cache.InvalidateProfile(ctx, profile.ID)
	cache.InvalidateSearches(ctx)
	if err := s.presence.Remove(ctx, models.UserID(profile.ID)); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove presence for deleted profile",
			"profile_id", profile.ID, "error", err)
	}
	return nil
}

// GetProfile returns a profile by id, served cache-aside with a 5 minute TTL.
func (s *UserService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := cache.Aside(ctx, cache.ProfileKey(id), &profile, cache.ProfileTTL, func() error {
		p, err := s.profiles.GetByID(ctx, id)
		if err != nil {
			return err
		}
		profile = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfileInput carries the caller-editable profile fields. Nil fields
// are left unchanged.
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	AvatarURL   *string
}

// UpdateProfile applies a partial update to the caller's own profile.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" {
			return nil, models.NewValidationError("Display name must not be empty")
		}
		profile.DisplayName = name
	}
	if in.Bio != nil {
		profile.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.AvatarURL != nil {
		profile.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventProfileUpdated, profile.ID, map[string]any{
		"displayName": profile.DisplayName,
	}))
	cache.InvalidateProfile(ctx, profile.ID)
	cache.InvalidateSearches(ctx)
	return profile, nil
}

// UpdateStatus sets the profile's durable availability status.
func (s *UserService) UpdateStatus(ctx context.Context, id string, status models.ProfileStatus) (*models.Profile, error) {
	if !models.ValidStatus(status) {
		return nil, models.NewValidationError("Unknown status")
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	profile.Status = status
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventProfileUpdated, profile.ID, map[string]any{
		"status": status,
	}))
	cache.InvalidateProfile(ctx, profile.ID)
	return profile, nil
}

// SearchProfiles finds profiles by username or display name, served
// cache-aside with a 1 minute TTL keyed by normalized term.
func (s *UserService) SearchProfiles(ctx context.Context, term string, limit, offset int) ([]*models.Profile, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, models.NewValidationError("Search term is required")
	}
	limit, offset = normalizePagination(limit, offset)

	// Only the first page is cached; deeper pages are rare and go direct.
	if offset != 0 || limit != defaultPageLimit {
		return s.profiles.Search(ctx, term, limit, offset)
	}

	var profiles []*models.Profile
	err := cache.Aside(ctx, cache.SearchKey(term), &profiles, cache.SearchTTL, func() error {
		found, err := s.profiles.Search(ctx, term, limit, offset)
		if err != nil {
			return err
		}
		profiles = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdatePresence overwrites the user's presence record and resets its TTL.
func (s *UserService) UpdatePresence(ctx context.Context, userID models.UserID, status models.PresenceStatus, statusMessage string) (*models.UserPresence, error) {
	if !models.ValidPresence(status) {
		return nil, models.NewValidationError("Unknown presence status")
	}

	now := time.Now().UTC()
	presence := &models.UserPresence{
		UserID:        userID,
		Status:        status,
		StatusMessage: strings.TrimSpace(statusMessage),
		LastSeen:      now,
		UpdatedAt:     now,
	}
	if err := s.presence.Set(ctx, presence); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, models.NewEvent(models.EventPresenceUpdated, userID.String(), map[string]any{
		"status": status,
	}))
	return presence, nil
}

// GetPresence returns a user's presence, or NotFound if the record expired.
func (s *UserService) GetPresence(ctx context.Context, userID models.UserID) (*models.UserPresence, error) {
	presence, err := s.presence.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if presence == nil {
		return nil, models.NewNotFoundError("Presence", userID)
	}
	return presence, nil
}

// GetMultiplePresences performs a batched lookup. Absent or expired entries
// are omitted from the result, not errored.
func (s *UserService) GetMultiplePresences(ctx context.Context, userIDs []models.UserID) (map[models.UserID]*models.UserPresence, error) {
	return s.presence.GetMultiple(ctx, userIDs)
}

func (s *UserService) appendEvent(ctx context.Context, env models.EventEnvelope) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Append(ctx, s.userTopic, env); err != nil {
		middleware.Logger.ErrorContext(ctx, "outbox append failed",
			"event_type", env.Type, "aggregate_id", env.AggregateID, "error", err)
	}
}
