package repository

import (
	"context"
	"time"

	"parley/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OutboxEntry is a pending domain event awaiting publication to the event
// log. Entries are appended in the same command flow that mutates state and
// drained by the relay, giving at-least-once delivery.
type OutboxEntry struct {
	ID          string               `bson:"_id"`
	Topic       string               `bson:"topic"`
	Key         string               `bson:"key"`
	Envelope    models.EventEnvelope `bson:"envelope"`
	CreatedAt   time.Time            `bson:"created_at"`
	PublishedAt *time.Time           `bson:"published_at,omitempty"`
}

// OutboxRepository stores and drains pending domain events.
type OutboxRepository interface {
	Append(ctx context.Context, topic string, env models.EventEnvelope) error
	// PendingBatch returns unpublished entries oldest-first.
	PendingBatch(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, id string) error
	CountPending(ctx context.Context) (int64, error)
}

type outboxRepository struct {
	coll *mongo.Collection
}

// NewOutboxRepository creates a Mongo-backed outbox repository.
func NewOutboxRepository(db *mongo.Database) OutboxRepository {
	return &outboxRepository{coll: db.Collection("outbox")}
}

func (r *outboxRepository) Append(ctx context.Context, topic string, env models.EventEnvelope) error {
	entry := OutboxEntry{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       env.AggregateID,
		Envelope:  env,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.coll.InsertOne(ctx, entry)
	return err
}

func (r *outboxRepository) PendingBatch(ctx context.Context, limit int) ([]OutboxEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.coll.Find(ctx, bson.M{"published_at": nil}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []OutboxEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"published_at": now}})
	return err
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"published_at": nil})
}
