package models

import "time"

// PresenceStatus is the ephemeral availability of a user.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
)

// UserPresence is an ephemeral, TTL-expired record. It is never persisted
// durably; a record that is not refreshed simply disappears. No transition
// rules apply — any status may follow any other.
type UserPresence struct {
	UserID        UserID         `json:"user_id"`
	Status        PresenceStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	LastSeen      time.Time      `json:"last_seen"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ValidPresence reports whether s is one of the recognized presence statuses.
func ValidPresence(s PresenceStatus) bool {
	switch s {
	case PresenceOnline, PresenceOffline, PresenceAway, PresenceBusy:
		return true
	}
	return false
}
