package models

import (
	"time"
)

// ConversationType distinguishes 1-on-1 chats from group chats.
type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

// Conversation is the write-side aggregate for a chat conversation.
// Private conversations have exactly two participants and never carry a
// name or description.
type Conversation struct {
	ID            ConversationID   `bson:"_id,omitempty" json:"id"`
	Type          ConversationType `bson:"type" json:"type"`
	Participants  []UserID         `bson:"participants" json:"participants"`
	Name          string           `bson:"name,omitempty" json:"name,omitempty"`
	Description   string           `bson:"description,omitempty" json:"description,omitempty"`
	Avatar        string           `bson:"avatar,omitempty" json:"avatar,omitempty"`
	CreatedBy     UserID           `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `bson:"updated_at" json:"updated_at"`
	LastMessageID MessageID        `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time       `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
}

// NewConversationInput carries the validated fields for conversation creation.
type NewConversationInput struct {
	Type         ConversationType
	Participants []UserID
	CreatorID    UserID
	Name         string
	Description  string
	Avatar       string
}

// NewConversation constructs a conversation, enforcing the type invariants.
// The creator is always included in the participant set; duplicates are
// collapsed. Private-pair uniqueness is a repository-level check, not an
// aggregate invariant.
func NewConversation(in NewConversationInput) (*Conversation, error) {
	if in.Type != ConversationPrivate && in.Type != ConversationGroup {
		return nil, NewValidationError("Conversation type must be 'private' or 'group'")
	}

	participants := dedupeUsers(append([]UserID{in.CreatorID}, in.Participants...))
	if len(participants) == 0 {
		return nil, NewValidationError("At least one participant is required")
	}

	if in.Type == ConversationPrivate {
		if len(participants) != 2 {
			return nil, NewValidationError("Private conversations require exactly 2 participants")
		}
		if in.Name != "" || in.Description != "" {
			return nil, NewValidationError("Private conversations cannot have a name or description")
		}
	}

	now := time.Now().UTC()
	return &Conversation{
		Type:         in.Type,
		Participants: participants,
		Name:         in.Name,
		Description:  in.Description,
		Avatar:       in.Avatar,
		CreatedBy:    in.CreatorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsParticipant reports whether the user belongs to the conversation. It is
// the authorization gate for every mutating or read operation.
func (c *Conversation) IsParticipant(userID UserID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// AddParticipant adds a user to a group conversation. Adding a user who is
// already a participant is a no-op.
func (c *Conversation) AddParticipant(userID UserID) error {
	if c.Type == ConversationPrivate {
		return NewInvalidOperationError("Cannot add participants to a private conversation")
	}
	if c.IsParticipant(userID) {
		return nil
	}
	c.Participants = append(c.Participants, userID)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// RemoveParticipant removes a user from a group conversation. Removing a
// user who is not a participant is a no-op; removing the last participant
// fails and leaves the set unchanged.
func (c *Conversation) RemoveParticipant(userID UserID) error {
	if c.Type == ConversationPrivate {
		return NewInvalidOperationError("Cannot remove participants from a private conversation")
	}
	if !c.IsParticipant(userID) {
		return nil
	}
	if len(c.Participants) == 1 {
		return NewInvalidOperationError("Cannot remove all participants from a conversation")
	}
	remaining := make([]UserID, 0, len(c.Participants)-1)
	for _, p := range c.Participants {
		if p != userID {
			remaining = append(remaining, p)
		}
	}
	c.Participants = remaining
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateMetadata changes the group-only name/description/avatar fields.
func (c *Conversation) UpdateMetadata(name, description, avatar string) error {
	if c.Type == ConversationPrivate {
		return NewInvalidOperationError("Cannot set metadata on a private conversation")
	}
	c.Name = name
	c.Description = description
	c.Avatar = avatar
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateLastMessage moves the last-message pointer. Called once per
// successful SendMessage; always succeeds.
func (c *Conversation) UpdateLastMessage(messageID MessageID, at time.Time) {
	c.LastMessageID = messageID
	c.LastMessageAt = &at
	c.UpdatedAt = at
}

func dedupeUsers(ids []UserID) []UserID {
	seen := make(map[UserID]struct{}, len(ids))
	out := make([]UserID, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
