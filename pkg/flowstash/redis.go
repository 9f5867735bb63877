package flowstash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStash is a Redis-backed Stash. Keys are namespaced by flow instance id
// so concurrent flows (duplicate tabs share an id, distinct devices do not)
// stay isolated; Redis TTLs handle expiry.
type RedisStash struct {
	client *redis.Client
	flowID string
	ttl    time.Duration
}

// NewRedisStash creates a stash scoped to the given flow instance id.
func NewRedisStash(client *redis.Client, flowID string, ttl time.Duration) *RedisStash {
	return &RedisStash{client: client, flowID: flowID, ttl: ttl}
}

func (s *RedisStash) key(key string) string {
	return fmt.Sprintf("authflow:stash:%s:%s", s.flowID, key)
}

func (s *RedisStash) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("flowstash: put %q: %w", key, err)
	}
	return nil
}

func (s *RedisStash) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("flowstash: get %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStash) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("flowstash: delete %q: %w", key, err)
	}
	return nil
}

func (s *RedisStash) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("authflow:stash:%s:*", s.flowID)

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("flowstash: clear scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("flowstash: clear: %w", err)
	}
	return nil
}

var _ Stash = (*RedisStash)(nil)
