package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"parley/internal/cache"
	"parley/internal/models"

	"github.com/redis/go-redis/v9"
)

// PresenceStore is the ephemeral per-user presence record keeper. Records
// expire automatically after the TTL unless refreshed.
type PresenceStore interface {
	// Set overwrites the full presence record and resets the TTL.
	Set(ctx context.Context, presence *models.UserPresence) error
	// Get returns the presence record, or nil if absent/expired.
	Get(ctx context.Context, userID models.UserID) (*models.UserPresence, error)
	// GetMultiple performs a batched lookup; absent entries are omitted.
	GetMultiple(ctx context.Context, userIDs []models.UserID) (map[models.UserID]*models.UserPresence, error)
	Remove(ctx context.Context, userID models.UserID) error
}

type presenceStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPresenceStore creates a Redis-backed presence store with a 24h TTL.
func NewPresenceStore(rdb *redis.Client) PresenceStore {
	return &presenceStore{rdb: rdb, ttl: cache.PresenceTTL}
}

func (s *presenceStore) Set(ctx context.Context, presence *models.UserPresence) error {
	if s.rdb == nil {
		return nil
	}
	b, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, cache.PresenceKey(presence.UserID.String()), b, cache.Jitter(s.ttl)).Err()
}

func (s *presenceStore) Get(ctx context.Context, userID models.UserID) (*models.UserPresence, error) {
	if s.rdb == nil {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, cache.PresenceKey(userID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var presence models.UserPresence
	if err := json.Unmarshal([]byte(raw), &presence); err != nil {
		return nil, err
	}
	return &presence, nil
}

func (s *presenceStore) GetMultiple(ctx context.Context, userIDs []models.UserID) (map[models.UserID]*models.UserPresence, error) {
	result := make(map[models.UserID]*models.UserPresence, len(userIDs))
	if s.rdb == nil || len(userIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cache.PresenceKey(id.String())
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // absent entries are omitted, not errored
		}
		var presence models.UserPresence
		if err := json.Unmarshal([]byte(raw), &presence); err != nil {
			continue
		}
		result[userIDs[i]] = &presence
	}
	return result, nil
}

func (s *presenceStore) Remove(ctx context.Context, userID models.UserID) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, cache.PresenceKey(userID.String())).Err()
}
