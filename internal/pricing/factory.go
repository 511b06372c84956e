package pricing

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend  string
	RedisKey string
	// Table is served by the memory backend and is the base and fallback
	// of the redis backend.
	Table Table
}

// NewStore builds the configured backend wrapped with logging and metrics.
func NewStore(cfg Config, redisClient *redis.Client) (Store, error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("pricing: redis backend requires a redis client")
		}
		inner := NewRedisStore(redisClient, RedisConfig{Key: cfg.RedisKey, Base: cfg.Table})
		return NewLoggingStore(inner, BackendRedis, cfg.Table), nil
	case BackendMemory, "":
		return NewLoggingStore(NewMemoryStore(cfg.Table), BackendMemory, cfg.Table), nil
	default:
		return nil, fmt.Errorf("pricing: unknown backend %q", cfg.Backend)
	}
}
