package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as JSON values with a key TTL, so expiry needs
// no sweeper and sessions survive bot restarts within the TTL.
type RedisStore[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects using a redis:// URL. Keys are "<prefix><userID>".
func NewRedisStore[T any](redisURL, prefix string, ttl time.Duration) (*RedisStore[T], error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisStore[T]{client: redis.NewClient(opts), prefix: prefix, ttl: ttl}, nil
}

func (r *RedisStore[T]) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

// Get loads the session or returns ErrNoSession when the key is absent or expired.
func (r *RedisStore[T]) Get(ctx context.Context, userID int64) (Session[T], error) {
	var s Session[T]
	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, ErrNoSession
	}
	if err != nil {
		return s, fmt.Errorf("failed to get session %d: %w", userID, err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return s, nil
}

// Save writes the session and resets its TTL.
func (r *RedisStore[T]) Save(ctx context.Context, userID int64, s Session[T]) error {
	s.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %d: %w", userID, err)
	}
	if err := r.client.Set(ctx, r.key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session %d: %w", userID, err)
	}
	return nil
}

// Delete removes the session.
func (r *RedisStore[T]) Delete(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %d: %w", userID, err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (r *RedisStore[T]) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore[T]) Close() error {
	return r.client.Close()
}
