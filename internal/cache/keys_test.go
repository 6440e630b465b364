package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyFormats(t *testing.T) {
	assert.Equal(t, "user:profile:u1", ProfileKey("u1"))
	assert.Equal(t, "user:presence:u1", PresenceKey("u1"))
	assert.Equal(t, "user:search:jane doe", SearchKey("  Jane   Doe "))
}

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "foo bar", NormalizeTerm("  FOO   bar "))
	assert.Equal(t, "", NormalizeTerm("   "))
}

func TestJitter(t *testing.T) {
	ttl := 5 * time.Minute
	for i := 0; i < 100; i++ {
		j := Jitter(ttl)
		assert.GreaterOrEqual(t, j, ttl-ttl/10)
		assert.LessOrEqual(t, j, ttl+ttl/10)
	}

	// TTLs too small to spread are returned unchanged
	assert.Equal(t, time.Duration(5), Jitter(5))
}
