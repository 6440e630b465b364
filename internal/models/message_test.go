package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage_ContentValidation(t *testing.T) {
	base := NewMessageInput{ConversationID: "c1", SenderID: "u1"}

	t.Run("Content is trimmed", func(t *testing.T) {
		in := base
		in.Content = "  hello there  "
		msg, err := NewMessage(in)
		require.NoError(t, err)
		assert.Equal(t, "hello there", msg.Content)
		assert.Equal(t, MessageText, msg.Type)
	})

	t.Run("Empty content rejected", func(t *testing.T) {
		in := base
		in.Content = "   "
		_, err := NewMessage(in)
		require.Error(t, err)
		assert.Equal(t, CodeValidation, ErrorCode(err))
	})

	t.Run("Content at the limit accepted", func(t *testing.T) {
		in := base
		in.Content = strings.Repeat("a", 10000)
		_, err := NewMessage(in)
		assert.NoError(t, err)
	})

	t.Run("Content over the limit rejected", func(t *testing.T) {
		in := base
		in.Content = strings.Repeat("a", 10001)
		_, err := NewMessage(in)
		require.Error(t, err)
		assert.Equal(t, CodeValidation, ErrorCode(err))
	})

	t.Run("Limit counts characters, not bytes", func(t *testing.T) {
		// Each of these runes is 3 bytes in UTF-8
		in := base
		in.Content = strings.Repeat("あ", 10000)
		_, err := NewMessage(in)
		assert.NoError(t, err)

		in.Content = strings.Repeat("あ", 10001)
		_, err = NewMessage(in)
		require.Error(t, err)
		assert.Equal(t, CodeValidation, ErrorCode(err))
	})

	t.Run("Unknown type rejected", func(t *testing.T) {
		in := base
		in.Content = "hi"
		in.Type = "sticker"
		_, err := NewMessage(in)
		require.Error(t, err)
		assert.Equal(t, CodeValidation, ErrorCode(err))
	})
}

func TestMessage_Receipts(t *testing.T) {
	newMsg := func(t *testing.T) *Message {
		msg, err := NewMessage(NewMessageInput{ConversationID: "c1", SenderID: "u1", Content: "hi"})
		require.NoError(t, err)
		return msg
	}

	t.Run("Delivery is idempotent", func(t *testing.T) {
		msg := newMsg(t)
		msg.MarkDeliveredTo("u2")
		msg.MarkDeliveredTo("u2")
		assert.Equal(t, []UserID{"u2"}, msg.DeliveredTo)
	})

	t.Run("Read implies delivered", func(t *testing.T) {
		msg := newMsg(t)
		msg.MarkReadBy("u2")
		assert.True(t, msg.IsDeliveredTo("u2"))
		assert.True(t, msg.IsReadBy("u2"))
	})

	t.Run("Read after delivery does not duplicate", func(t *testing.T) {
		msg := newMsg(t)
		msg.MarkDeliveredTo("u2")
		msg.MarkReadBy("u2")
		msg.MarkReadBy("u2")
		assert.Equal(t, []UserID{"u2"}, msg.DeliveredTo)
		assert.Equal(t, []UserID{"u2"}, msg.ReadBy)
	})
}

func TestMessage_Authorization(t *testing.T) {
	msg, err := NewMessage(NewMessageInput{ConversationID: "c1", SenderID: "u1", Content: "hi"})
	require.NoError(t, err)

	assert.True(t, msg.CanBeEditedBy("u1"))
	assert.False(t, msg.CanBeEditedBy("u2"))
	assert.True(t, msg.CanBeDeletedBy("u1"))
	assert.False(t, msg.CanBeDeletedBy("u2"))
}

func TestMessage_UpdateContent(t *testing.T) {
	msg, err := NewMessage(NewMessageInput{ConversationID: "c1", SenderID: "u1", Content: "hi"})
	require.NoError(t, err)

	require.NoError(t, msg.UpdateContent("  edited  "))
	assert.Equal(t, "edited", msg.Content)

	err = msg.UpdateContent("")
	require.Error(t, err)
	assert.Equal(t, CodeValidation, ErrorCode(err))
	assert.Equal(t, "edited", msg.Content)
}

func TestIDs_Validation(t *testing.T) {
	id, err := NewUserID("  u1  ")
	require.NoError(t, err)
	assert.Equal(t, UserID("u1"), id)

	_, err = NewUserID("   ")
	assert.Equal(t, CodeValidation, ErrorCode(err))

	_, err = NewConversationID("")
	assert.Equal(t, CodeValidation, ErrorCode(err))

	_, err = NewMessageID("")
	assert.Equal(t, CodeValidation, ErrorCode(err))
}
