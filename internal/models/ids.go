// Package models contains the domain aggregates and value types for
// conversations, messages, profiles, and presence.
package models

import "strings"

// UserID identifies a user. The zero value is invalid.
type UserID string

// ConversationID identifies a conversation. The zero value is invalid.
type ConversationID string

// MessageID identifies a message. The zero value is invalid.
type MessageID string

// NewUserID validates and constructs a UserID.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("User ID must not be empty")
	}
	return UserID(trimmed), nil
}

// NewConversationID validates and constructs a ConversationID.
func NewConversationID(raw string) (ConversationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("Conversation ID must not be empty")
	}
	return ConversationID(trimmed), nil
}

// NewMessageID validates and constructs a MessageID.
func NewMessageID(raw string) (MessageID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", NewValidationError("Message ID must not be empty")
	}
	return MessageID(trimmed), nil
}

func (id UserID) String() string         { return string(id) }
func (id ConversationID) String() string { return string(id) }
func (id MessageID) String() string      { return string(id) }
