package database

import (
	"context"
	"fmt"
	"time"

	"parley/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens the document-store connection for conversations,
// messages, and the outbox, and ensures the indexes the read paths rely on.
func ConnectMongo(cfg *config.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	if err := ensureIndexes(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return db, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "content", Value: "text"}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("conversations").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "participants", Value: 1}}},
	})
	if err != nil {
		return err
	}

	_, err = db.Collection("outbox").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "published_at", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}
