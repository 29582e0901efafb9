package providercache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists a ProviderCache snapshot as a single JSON blob under
// one Redis key, for deployments that already run Redis for the rotation
// debounce limiter (internal/ratelimit.RedisLimiter) and want the same
// instance to also hold warm provider state across restarts.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore returns a Store backed by the given Redis client. The
// snapshot is stored under key, with no expiry — it is a durable cache, not
// a transient one.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "oidcrs:providercache"
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (SerializedProviders, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return SerializedProviders{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("providercache/redis: loading %s: %w", s.key, err)
	}

	var providers SerializedProviders
	if err := json.Unmarshal(raw, &providers); err != nil {
		return nil, fmt.Errorf("providercache/redis: decoding snapshot: %w", err)
	}
	return providers, nil
}

func (s *RedisStore) Save(ctx context.Context, providers SerializedProviders) error {
	raw, err := json.Marshal(providers)
	if err != nil {
		return fmt.Errorf("providercache/redis: encoding snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("providercache/redis: saving %s: %w", s.key, err)
	}
	return nil
}
