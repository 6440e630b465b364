package models

import "time"

// ProfileStatus is the user-selected availability status on a profile.
type ProfileStatus string

const (
	StatusOnline       ProfileStatus = "online"
	StatusOffline      ProfileStatus = "offline"
	StatusAway         ProfileStatus = "away"
	StatusDoNotDisturb ProfileStatus = "do-not-disturb"
)

// Profile is the relational user profile, created and deleted by upstream
// identity events. Username is unique at creation time.
type Profile struct {
	ID          string        `gorm:"primaryKey" json:"id"`
	AuthID      string        `gorm:"uniqueIndex;not null" json:"auth_id"`
	Username    string        `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string        `gorm:"not null" json:"display_name"`
	Bio         string        `json:"bio,omitempty"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
	Status      ProfileStatus `gorm:"default:'offline'" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName keeps the table name aligned with the upstream schema.
func (Profile) TableName() string { return "profiles" }

// ValidStatus reports whether s is one of the recognized profile statuses.
func ValidStatus(s ProfileStatus) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusAway, StatusDoNotDisturb:
		return true
	}
	return false
}
