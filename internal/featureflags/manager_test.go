package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_OnOff(t *testing.T) {
	m := NewManager("typing_indicators=on, legacy_receipts=off, weird = 1")

	assert.True(t, m.Enabled("typing_indicators", "u1"))
	assert.True(t, m.Enabled("TYPING_INDICATORS", "u1"))
	assert.False(t, m.Enabled("legacy_receipts", "u1"))
	assert.True(t, m.Enabled("weird", "u1"))
	assert.False(t, m.Enabled("unknown_flag", "u1"))
}

func TestManager_PercentageRollout(t *testing.T) {
	m := NewManager("presence_fanout=50%")

	// Deterministic per user
	first := m.Enabled("presence_fanout", "user-a")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Enabled("presence_fanout", "user-a"))
	}

	// Bounds
	assert.False(t, NewManager("f=0%").Enabled("f", "u1"))
	assert.True(t, NewManager("f=100%").Enabled("f", "u1"))
	assert.False(t, NewManager("f=50%").Enabled("f", ""))
	assert.False(t, NewManager("f=nope%").Enabled("f", "u1"))
}

func TestManager_MalformedEntries(t *testing.T) {
	m := NewManager("=on, novalue=, , solo, good=on")
	assert.True(t, m.Enabled("good", "u1"))
	assert.False(t, m.Enabled("novalue", "u1"))
	assert.False(t, m.Enabled("solo", "u1"))
}

func TestManager_Snapshot(t *testing.T) {
	m := NewManager("a=on,b=off")
	snap := m.Snapshot("u1")
	assert.Equal(t, map[string]bool{"a": true, "b": false}, snap)
}

func TestManager_NilSafe(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled("anything", "u1"))
}
