package service

import (
	"context"
	"testing"
	"time"

	"parley/internal/events"
	"parley/internal/models"
	"parley/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestUserService(t *testing.T) (*UserService, repository.ProfileRepository, *miniredis.Miniredis, *outboxStub) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Profile{}))
	profiles := repository.NewProfileRepository(db)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	presence := repository.NewPresenceStore(rdb)

	outbox := &outboxStub{}
	return NewUserService(profiles, presence, outbox, "user-events"), profiles, mr, outbox
}

func TestUserService_HandleIdentityRegistered(t *testing.T) {
	svc, profiles, _, outbox := newTestUserService(t)
	ctx := context.Background()

	fields := events.IdentityRegisteredFields{Username: "jane", DisplayName: "Jane Doe"}
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1", fields))

	profile, err := profiles.GetByAuthID(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "jane", profile.Username)
	assert.Equal(t, "Jane Doe", profile.DisplayName)
	assert.Equal(t, models.StatusOffline, profile.Status)

	require.Len(t, outbox.appended, 1)
	assert.Equal(t, models.EventProfileCreated, outbox.appended[0].Type)
	assert.Equal(t, "user-events", outbox.topics[0])

	// Redelivery of the same event is a no-op
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1", fields))
	assert.Len(t, outbox.appended, 1)
}

func TestUserService_HandleIdentityRegistered_Defaults(t *testing.T) {
	svc, profiles, _, _ := newTestUserService(t)
	ctx := context.Background()

	// Display name falls back to the username
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "bob"}))
	profile, err := profiles.GetByAuthID(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", profile.DisplayName)

	// Missing username is skipped, not errored
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-2",
		events.IdentityRegisteredFields{}))
	_, err = profiles.GetByAuthID(ctx, "auth-2")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserService_HandleIdentityRegistered_UsernameTaken(t *testing.T) {
	svc, profiles, _, _ := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "jane"}))

	// A second identity claiming the same username must not wedge the consumer
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-2",
		events.IdentityRegisteredFields{Username: "jane"}))
	_, err := profiles.GetByAuthID(ctx, "auth-2")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserService_HandleIdentityDeleted(t *testing.T) {
	svc, profiles, _, outbox := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "jane"}))
	profile, err := profiles.GetByAuthID(ctx, "auth-1")
	require.NoError(t, err)

	_, err = svc.UpdatePresence(ctx, models.UserID(profile.ID), models.PresenceOnline, "")
	require.NoError(t, err)

	require.NoError(t, svc.HandleIdentityDeleted(ctx, "auth-1"))
	_, err = profiles.GetByAuthID(ctx, "auth-1")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	// Presence record was swept along with the profile
	_, err = svc.GetPresence(ctx, models.UserID(profile.ID))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	assert.Equal(t, models.EventProfileDeleted, outbox.appended[len(outbox.appended)-1].Type)

	// Redelivery is a no-op
	appended := len(outbox.appended)
	require.NoError(t, svc.HandleIdentityDeleted(ctx, "auth-1"))
	assert.Len(t, outbox.appended, appended)
}

func TestUserService_UpdateProfile(t *testing.T) {
	svc, profiles, _, _ := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "jane"}))
	profile, err := profiles.GetByAuthID(ctx, "auth-1")
	require.NoError(t, err)

	bio := " hello there "
	updated, err := svc.UpdateProfile(ctx, profile.ID, UpdateProfileInput{Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "hello there", updated.Bio)
	assert.Equal(t, "jane", updated.DisplayName, "unset fields are left unchanged")

	empty := "   "
	_, err = svc.UpdateProfile(ctx, profile.ID, UpdateProfileInput{DisplayName: &empty})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	_, err = svc.UpdateProfile(ctx, "missing", UpdateProfileInput{Bio: &bio})
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserService_UpdateStatus(t *testing.T) {
	svc, profiles, _, _ := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "jane"}))
	profile, err := profiles.GetByAuthID(ctx, "auth-1")
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, profile.ID, models.StatusAway)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAway, updated.Status)

	_, err = svc.UpdateStatus(ctx, profile.ID, models.ProfileStatus("invisible"))
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestUserService_SearchProfiles(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-1",
		events.IdentityRegisteredFields{Username: "jane_doe"}))
	require.NoError(t, svc.HandleIdentityRegistered(ctx, "auth-2",
		events.IdentityRegisteredFields{Username: "bob"}))

	results, err := svc.SearchProfiles(ctx, "jane", 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "jane_doe", results[0].Username)

	_, err = svc.SearchProfiles(ctx, "  ", 0, 0)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
}

func TestUserService_Presence(t *testing.T) {
	svc, _, mr, _ := newTestUserService(t)
	ctx := context.Background()

	presence, err := svc.UpdatePresence(ctx, "u1", models.PresenceBusy, "  in a meeting ")
	require.NoError(t, err)
	assert.Equal(t, "in a meeting", presence.StatusMessage)

	got, err := svc.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.PresenceBusy, got.Status)

	_, err = svc.UpdatePresence(ctx, "u1", models.PresenceStatus("lurking"), "")
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	// Expired records read back as NotFound (past the maximum jittered TTL)
	mr.FastForward(27 * time.Hour)
	_, err = svc.GetPresence(ctx, "u1")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestUserService_GetMultiplePresences(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)
	ctx := context.Background()

	_, err := svc.UpdatePresence(ctx, "u1", models.PresenceOnline, "")
	require.NoError(t, err)

	result, err := svc.GetMultiplePresences(ctx, []models.UserID{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, models.PresenceOnline, result["u1"].Status)
}
