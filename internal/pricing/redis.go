package pricing

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "reasongate:pricing"

// RedisStore reads the table from a Redis hash. Fields missing from the hash
// keep the value of the base table.
type RedisStore struct {
	client *redis.Client
	key    string
	base   Table
}

type RedisConfig struct {
	Key  string
	Base Table
}

func NewRedisStore(client *redis.Client, config RedisConfig) *RedisStore {
	key := config.Key
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, base: config.Base}
}

func (s *RedisStore) Table(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, fmt.Errorf("context error: %w", err)
	}

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Table{}, fmt.Errorf("redis hgetall failed: %w", err)
	}
	return ParseFields(fields, s.base)
}

// Put writes t into the hash.
func (s *RedisStore) Put(ctx context.Context, t Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	values := make([]any, 0, 10)
	for k, v := range Fields(t) {
		values = append(values, k, v)
	}
	if err := s.client.HSet(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}
