package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StoreConfig selects and configures a persistence backend.
type StoreConfig struct {
	Type  StoreType        `yaml:"type" json:"type"`
	Redis RedisStoreConfig `yaml:"redis" json:"redis"`
	Gorm  GormStoreConfig  `yaml:"gorm" json:"gorm"`
	Mongo MongoStoreConfig `yaml:"mongo" json:"mongo"`
	Retry RetryConfig      `yaml:"retry" json:"retry"`
}

// DefaultStoreConfig returns the in-memory backend.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:  StoreTypeMemory,
		Gorm:  DefaultGormStoreConfig(),
		Mongo: DefaultMongoStoreConfig(),
		Retry: DefaultRetryConfig(),
	}
}

// NewStore builds an ExecutionStore from configuration.
func NewStore(ctx context.Context, config StoreConfig, logger *zap.Logger) (ExecutionStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(logger), nil
	case StoreTypeRedis:
		return NewRedisStore(ctx, config.Redis, logger)
	case StoreTypeGorm:
		return NewGormStore(config.Gorm, logger)
	case StoreTypeMongo:
		return NewMongoStore(ctx, config.Mongo, logger)
	default:
		return nil, fmt.Errorf("unknown store type: %s", config.Type)
	}
}
