package notifications

import (
	"encoding/json"
	"fmt"
	"testing"

	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegister(t *testing.T, h *ChatHub, userID models.UserID) *Client {
	t.Helper()
	client, err := h.Register(userID, nil)
	require.NoError(t, err)
	return client
}

func receivedEvent(t *testing.T, c *Client) *RealtimeEvent {
	t.Helper()
	select {
	case raw := <-c.Send:
		var event RealtimeEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		return &event
	default:
		return nil
	}
}

func TestChatHub_RegisterLimit(t *testing.T) {
	h := NewChatHub()

	for i := 0; i < maxConnsPerUser; i++ {
		mustRegister(t, h, "u1")
	}
	_, err := h.Register("u1", nil)
	assert.Error(t, err)

	// Other users are unaffected
	mustRegister(t, h, "u2")
}

func TestChatHub_BroadcastKindFiltering(t *testing.T) {
	h := NewChatHub()
	reader := mustRegister(t, h, "u2")
	h.Subscribe(reader, "c1", KindMessage)

	h.Broadcast(RealtimeEvent{Kind: KindMessage, ConversationID: "c1", UserID: "u1"})
	event := receivedEvent(t, reader)
	require.NotNil(t, event)
	assert.Equal(t, KindMessage, event.Kind)

	// Not subscribed to status events on this conversation
	h.Broadcast(RealtimeEvent{Kind: KindStatus, ConversationID: "c1", UserID: "u1"})
	assert.Nil(t, receivedEvent(t, reader))

	// Different conversation entirely
	h.Broadcast(RealtimeEvent{Kind: KindMessage, ConversationID: "c2", UserID: "u1"})
	assert.Nil(t, receivedEvent(t, reader))
}

func TestChatHub_TypingSelfExclusion(t *testing.T) {
	h := NewChatHub()
	typist := mustRegister(t, h, "u1")
	reader := mustRegister(t, h, "u2")
	for _, c := range []*Client{typist, reader} {
		h.Subscribe(c, "c1", KindTyping)
		h.Subscribe(c, "c1", KindMessage)
	}

	h.Broadcast(RealtimeEvent{Kind: KindTyping, ConversationID: "c1", UserID: "u1"})

	// The typist never hears their own typing event; everyone else does
	assert.Nil(t, receivedEvent(t, typist))
	event := receivedEvent(t, reader)
	require.NotNil(t, event)
	assert.Equal(t, models.UserID("u1"), event.UserID)

	// Self-exclusion applies only to typing
	h.Broadcast(RealtimeEvent{Kind: KindMessage, ConversationID: "c1", UserID: "u1"})
	assert.NotNil(t, receivedEvent(t, typist))
	assert.NotNil(t, receivedEvent(t, reader))
}

func TestChatHub_Unsubscribe(t *testing.T) {
	h := NewChatHub()
	client := mustRegister(t, h, "u1")
	h.Subscribe(client, "c1", KindMessage)
	h.Subscribe(client, "c1", KindStatus)
	assert.Equal(t, 1, h.SubscriberCount("c1"))

	h.Unsubscribe(client, "c1", KindMessage)
	assert.Equal(t, 1, h.SubscriberCount("c1"), "still subscribed for status")

	h.Unsubscribe(client, "c1", KindStatus)
	assert.Equal(t, 0, h.SubscriberCount("c1"))
}

func TestChatHub_UnregisterCleansSubscriptions(t *testing.T) {
	h := NewChatHub()
	client := mustRegister(t, h, "u1")
	h.Subscribe(client, "c1", KindMessage)
	h.Subscribe(client, "c2", KindMessage)
	assert.True(t, h.IsUserOnline("u1"))

	h.UnregisterClient(client)
	assert.False(t, h.IsUserOnline("u1"))
	assert.Equal(t, 0, h.SubscriberCount("c1"))
	assert.Equal(t, 0, h.SubscriberCount("c2"))

	// Subscribing after unregister is ignored
	h.Subscribe(client, "c1", KindMessage)
	assert.Equal(t, 0, h.SubscriberCount("c1"))
}

func TestChatHub_BackpressureDropNotice(t *testing.T) {
	h := NewChatHub()
	client := mustRegister(t, h, "u1")
	h.Subscribe(client, "c1", KindMessage)

	// Fill the send buffer without a reader
	for i := 0; i < cap(client.Send); i++ {
		client.TrySend([]byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	require.Len(t, client.Send, cap(client.Send))

	// Next send is dropped without blocking
	client.TrySend([]byte(`{"kind":"message"}`))
	assert.Len(t, client.Send, cap(client.Send))
}

func TestChannelRoundTrip(t *testing.T) {
	name := Channel(KindTyping, "conv-42")
	assert.Equal(t, "typing.conv-42", name)

	kind, convID, ok := parseChannel(name)
	require.True(t, ok)
	assert.Equal(t, KindTyping, kind)
	assert.Equal(t, models.ConversationID("conv-42"), convID)

	for _, bad := range []string{"", "typing", ".conv", "typing."} {
		_, _, ok := parseChannel(bad)
		assert.False(t, ok, "channel %q should not parse", bad)
	}
}
