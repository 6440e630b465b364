// Package bootstrap establishes the backing-store connections shared by the
// server and auxiliary commands.
package bootstrap

import (
	"fmt"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	Migrate bool
}

// InitRuntime connects to Postgres, Mongo, and Redis. The Redis client may
// be nil if the server is unreachable; callers degrade gracefully.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *mongo.Database, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if opts.Migrate {
		if err := database.Migrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
	}

	mongoDB, err := database.ConnectMongo(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mongo connection failed: %w", err)
	}

	// May result in a nil client if unreachable
	cache.InitRedis(cfg.RedisURL)

	return db, mongoDB, cache.GetClient(), nil
}
