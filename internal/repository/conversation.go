// Package repository contains the persistence adapters for the chat and
// user domains: MongoDB for conversations, messages, and the outbox,
// Postgres (GORM) for profiles, and Redis for presence.
package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository defines the interface for conversation persistence.
// Save has upsert semantics: a full replace keyed by id.
type ConversationRepository interface {
	Save(ctx context.Context, conv *models.Conversation) error
	FindByID(ctx context.Context, id models.ConversationID) (*models.Conversation, error)
	// FindPrivateBetween returns the private conversation between the two
	// users, or nil if none exists. Participant order is irrelevant.
	FindPrivateBetween(ctx context.Context, a, b models.UserID) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID models.UserID, limit, offset int) ([]*models.Conversation, error)
	SearchByName(ctx context.Context, userID models.UserID, term string, limit, offset int) ([]*models.Conversation, error)
	// UpdateLastMessage re-asserts the last-message pointer. It is
	// idempotent and never moves the pointer backwards in time.
	UpdateLastMessage(ctx context.Context, id models.ConversationID, messageID models.MessageID, at time.Time) error
}

type conversationRepository struct {
	coll *mongo.Collection
}

// NewConversationRepository creates a Mongo-backed conversation repository.
func NewConversationRepository(db *mongo.Database) ConversationRepository {
	return &conversationRepository{coll: db.Collection("conversations")}
}

func (r *conversationRepository) Save(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = models.ConversationID(primitive.NewObjectID().Hex())
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": conv.ID}, conv, opts)
	return err
}

func (r *conversationRepository) FindByID(ctx context.Context, id models.ConversationID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NewNotFoundError("Conversation", id)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) FindPrivateBetween(ctx context.Context, a, b models.UserID) (*models.Conversation, error) {
	filter := bson.M{
		"type":         models.ConversationPrivate,
		"participants": bson.M{"$all": bson.A{a, b}},
	}
	var conv models.Conversation
	err := r.coll.FindOne(ctx, filter).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID models.UserID, limit, offset int) ([]*models.Conversation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []*models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) SearchByName(ctx context.Context, userID models.UserID, term string, limit, offset int) ([]*models.Conversation, error) {
	filter := bson.M{
		"participants": userID,
		"name":         bson.M{"$regex": primitive.Regex{Pattern: regexQuote(term), Options: "i"}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var conversations []*models.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *conversationRepository) UpdateLastMessage(ctx context.Context, id models.ConversationID, messageID models.MessageID, at time.Time) error {
	// Guard against replays: only advance the pointer.
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"last_message_at": bson.M{"$lt": at}},
			bson.M{"last_message_at": bson.M{"$exists": false}},
			bson.M{"last_message_at": nil},
		},
	}
	update := bson.M{"$set": bson.M{
		"last_message_id": messageID,
		"last_message_at": at,
		"updated_at":      at,
	}}
	_, err := r.coll.UpdateOne(ctx, filter, update)
	return err
}
