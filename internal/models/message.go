package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

const maxMessageContentLen = 10000 // 10K characters

// Attachment is an opaque reference to externally stored content.
type Attachment struct {
	URL      string `bson:"url" json:"url"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	MimeType string `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Size     int64  `bson:"size,omitempty" json:"size,omitempty"`
}

// Message is the write-side aggregate for a single chat message. Delivery
// and read receipts are sets keyed by user; reading implies delivery.
type Message struct {
	ID             MessageID      `bson:"_id,omitempty" json:"id"`
	ConversationID ConversationID `bson:"conversation_id" json:"conversation_id"`
	SenderID       UserID         `bson:"sender_id" json:"sender_id"`
	Content        string         `bson:"content" json:"content"`
	Type           MessageType    `bson:"type" json:"type"`
	ReplyTo        MessageID      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	Attachments    []Attachment   `bson:"attachments,omitempty" json:"attachments,omitempty"`
	DeliveredTo    []UserID       `bson:"delivered_to" json:"delivered_to"`
	ReadBy         []UserID       `bson:"read_by" json:"read_by"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updated_at"`
}

// NewMessageInput carries the validated fields for message creation.
type NewMessageInput struct {
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	ReplyTo        MessageID
	Attachments    []Attachment
}

// NewMessage constructs a message, trimming and validating content.
func NewMessage(in NewMessageInput) (*Message, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return nil, err
	}

	msgType := in.Type
	if msgType == "" {
		msgType = MessageText
	}
	switch msgType {
	case MessageText, MessageImage, MessageFile, MessageSystem:
	default:
		return nil, NewValidationError("Unknown message type")
	}

	now := time.Now().UTC()
	return &Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        content,
		Type:           msgType,
		ReplyTo:        in.ReplyTo,
		Attachments:    in.Attachments,
		DeliveredTo:    []UserID{},
		ReadBy:         []UserID{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// UpdateContent replaces the message content. Callers must check
// CanBeEditedBy first; content is re-validated.
func (m *Message) UpdateContent(content string) error {
	trimmed, err := validateContent(content)
	if err != nil {
		return err
	}
	m.Content = trimmed
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// CanBeEditedBy reports whether the user may edit this message.
func (m *Message) CanBeEditedBy(userID UserID) bool {
	return m.SenderID == userID
}

// CanBeDeletedBy reports whether the user may delete this message.
func (m *Message) CanBeDeletedBy(userID UserID) bool {
	return m.SenderID == userID
}

// MarkDeliveredTo records delivery to a user. Idempotent.
func (m *Message) MarkDeliveredTo(userID UserID) {
	if !containsUser(m.DeliveredTo, userID) {
		m.DeliveredTo = append(m.DeliveredTo, userID)
		m.UpdatedAt = time.Now().UTC()
	}
}

// MarkReadBy records a read receipt for a user. Idempotent; reading a
// message implies it was delivered.
func (m *Message) MarkReadBy(userID UserID) {
	m.MarkDeliveredTo(userID)
	if !containsUser(m.ReadBy, userID) {
		m.ReadBy = append(m.ReadBy, userID)
		m.UpdatedAt = time.Now().UTC()
	}
}

// IsDeliveredTo reports whether the message was delivered to the user.
func (m *Message) IsDeliveredTo(userID UserID) bool {
	return containsUser(m.DeliveredTo, userID)
}

// IsReadBy reports whether the user has read the message.
func (m *Message) IsReadBy(userID UserID) bool {
	return containsUser(m.ReadBy, userID)
}

func validateContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", NewValidationError("Message content is required")
	}
	// Limit is in characters, not bytes
	if utf8.RuneCountInString(trimmed) > maxMessageContentLen {
		return "", NewValidationError("Message content too long (max 10000 characters)")
	}
	return trimmed, nil
}

func containsUser(ids []UserID, id UserID) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
