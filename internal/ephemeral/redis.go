package ephemeral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared Redis client. Payloads are JSON
// encoded; expiry is delegated to Redis TTLs and Take maps to GETDEL, which
// Redis executes atomically -- that is what makes concurrent one-shot
// consumption linearizable across multiple server instances.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. All keys are namespaced with
// the given prefix (e.g. "captcha:") so multiple stores can share one
// client and database.
func NewRedisStore[T any](client *redis.Client, prefix string) *RedisStore[T] {
	return &RedisStore[T]{client: client, prefix: prefix}
}

// Put stores payload under key with the given TTL. A zero TTL stores the
// record without expiry.
func (s *RedisStore[T]) Put(ctx context.Context, key string, payload T, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling ephemeral record: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("storing ephemeral record: %w", err)
	}
	return nil
}

// Get returns the payload for key, or absent once the Redis TTL has elapsed.
func (s *RedisStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("reading ephemeral record: %w", err)
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return zero, false, fmt.Errorf("unmarshaling ephemeral record: %w", err)
	}
	return payload, true, nil
}

// Take atomically reads and deletes the record via GETDEL.
func (s *RedisStore[T]) Take(ctx context.Context, key string) (T, bool, error) {
	var zero T

	data, err := s.client.GetDel(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("taking ephemeral record: %w", err)
	}

	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return zero, false, fmt.Errorf("unmarshaling ephemeral record: %w", err)
	}
	return payload, true, nil
}

// Delete removes the record if present.
func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting ephemeral record: %w", err)
	}
	return nil
}

// Close is a no-op: the Redis client is shared and owned by the caller.
func (s *RedisStore[T]) Close() error {
	return nil
}
