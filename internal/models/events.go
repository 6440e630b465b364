package models

import (
	"encoding/json"
	"time"
)

// Domain event types. Names are past-tense and describe committed state
// changes; typing events are the liveness exception.
const (
	EventConversationCreated     = "conversation.created"
	EventParticipantsAdded       = "conversation.participants_added"
	EventParticipantsRemoved     = "conversation.participants_removed"
	EventConversationMetaUpdated = "conversation.metadata_updated"
	EventMessageSent             = "message.sent"
	EventMessageUpdated          = "message.updated"
	EventMessageDeleted          = "message.deleted"
	EventMessageDelivered        = "message.delivered"
	EventMessageRead             = "message.read"
	EventTypingStarted           = "typing.started"
	EventTypingStopped           = "typing.stopped"
	EventPresenceUpdated         = "presence.updated"
	EventProfileCreated          = "profile.created"
	EventProfileUpdated          = "profile.updated"
	EventProfileDeleted          = "profile.deleted"

	// Consumed from the upstream identity service.
	EventIdentityRegistered = "identity.registered"
	EventIdentityDeleted    = "identity.deleted"
)

// EventEnvelope is the JSON shape written to the event log and the outbox.
// Envelopes are keyed by AggregateID so a single aggregate's events share a
// partition and retain order.
type EventEnvelope struct {
	Type        string          `bson:"type" json:"type"`
	AggregateID string          `bson:"aggregate_id" json:"aggregateId"`
	Timestamp   time.Time       `bson:"timestamp" json:"timestamp"`
	Fields      json.RawMessage `bson:"fields,omitempty" json:"fields,omitempty"`
}

// NewEvent builds an envelope, marshaling fields to JSON. A marshal failure
// yields an envelope without fields rather than no event at all.
func NewEvent(eventType, aggregateID string, fields any) EventEnvelope {
	env := EventEnvelope{
		Type:        eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
	}
	if fields != nil {
		if raw, err := json.Marshal(fields); err == nil {
			env.Fields = raw
		}
	}
	return env
}
