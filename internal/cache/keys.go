package cache

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	ProfileKeyPrefix  = "user:profile:%s"
	SearchKeyPrefix   = "user:search:%s"
	PresenceKeyPrefix = "user:presence:%s"
)

const (
	ProfileTTL  = 5 * time.Minute
	SearchTTL   = 1 * time.Minute
	PresenceTTL = 24 * time.Hour
)

func ProfileKey(userID string) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

func SearchKey(term string) string {
	return fmt.Sprintf(SearchKeyPrefix, NormalizeTerm(term))
}

func PresenceKey(userID string) string {
	return fmt.Sprintf(PresenceKeyPrefix, userID)
}

// NormalizeTerm canonicalizes a search term for use as a cache key.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.Join(strings.Fields(term), " "))
}

// Jitter spreads a TTL by up to ±10% to prevent synchronized expiry storms.
func Jitter(ttl time.Duration) time.Duration {
	spread := int64(ttl) / 10
	if spread == 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(2*spread)-spread)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateProfile(ctx context.Context, userID string) {
	Invalidate(ctx, ProfileKey(userID))
}

// InvalidateSearches drops all cached search results. Search entries are
// short-lived, so a full sweep on profile writes is acceptable.
func InvalidateSearches(ctx context.Context) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, fmt.Sprintf(SearchKeyPrefix, "*"), 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
}
