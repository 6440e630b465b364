package repository

import (
	"context"
	"errors"
	"regexp"

	"parley/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository defines the interface for message persistence.
// Save has upsert semantics: a full replace keyed by id.
type MessageRepository interface {
	Save(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id models.MessageID) (*models.Message, error)
	ListByConversation(ctx context.Context, convID models.ConversationID, limit, offset int) ([]*models.Message, error)
	SearchContent(ctx context.Context, convIDs []models.ConversationID, term string, limit, offset int) ([]*models.Message, error)
	Delete(ctx context.Context, id models.MessageID) error
}

type messageRepository struct {
	coll *mongo.Collection
}

// NewMessageRepository creates a Mongo-backed message repository.
func NewMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{coll: db.Collection("messages")}
}

func (r *messageRepository) Save(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = models.MessageID(primitive.NewObjectID().Hex())
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": msg.ID}, msg, opts)
	return err
}

func (r *messageRepository) FindByID(ctx context.Context, id models.MessageID) (*models.Message, error) {
	var msg models.Message
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.NewNotFoundError("Message", id)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, convID models.ConversationID, limit, offset int) ([]*models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, bson.M{"conversation_id": convID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) SearchContent(ctx context.Context, convIDs []models.ConversationID, term string, limit, offset int) ([]*models.Message, error) {
	if len(convIDs) == 0 {
		return []*models.Message{}, nil
	}
	filter := bson.M{
		"conversation_id": bson.M{"$in": convIDs},
		"content":         bson.M{"$regex": primitive.Regex{Pattern: regexQuote(term), Options: "i"}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepository) Delete(ctx context.Context, id models.MessageID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("Message", id)
	}
	return nil
}

func regexQuote(term string) string {
	return regexp.QuoteMeta(term)
}
