// ABOUTME: Redis-backed session store with TTL and in-process fallback.
// ABOUTME: Redis unavailability degrades to the fallback map, logged, never fatal.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists sessions as JSON values under sess:<key> with a TTL,
// so abandoned flows expire without explicit cleanup. When redis is
// unreachable it falls back to an in-process map, which is acceptable only
// for single-instance deployments.
type RedisStore struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryStore
	logger   *slog.Logger
}

// NewRedisStore creates a session store over the given redis client.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:   client,
		ttl:      ttl,
		fallback: NewMemoryStore(ttl),
		logger:   logger.With("component", "session"),
	}
}

func sessKey(key string) string { return "sess:" + key }

// Get loads the session for the key, degrading to Idle on any failure.
func (r *RedisStore) Get(ctx context.Context, key string) Session {
	raw, err := r.client.Get(ctx, sessKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Idle()
	}
	if err != nil {
		r.logger.Warn("redis get failed, using fallback store", "key", key, "error", err)
		return r.fallback.Get(ctx, key)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		r.logger.Warn("discarding unreadable session", "key", key, "error", err)
		return Idle()
	}
	return sess
}

// Put stores the session with the configured TTL. Failures are mirrored to
// the fallback store so the flow can continue within this instance.
func (r *RedisStore) Put(ctx context.Context, key string, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, sessKey(key), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed, using fallback store", "key", key, "error", err)
		return r.fallback.Put(ctx, key, sess)
	}
	return nil
}

// Clear deletes the session from redis and the fallback store.
func (r *RedisStore) Clear(ctx context.Context, key string) error {
	_ = r.fallback.Clear(ctx, key)
	if err := r.client.Del(ctx, sessKey(key)).Err(); err != nil {
		r.logger.Warn("redis del failed", "key", key, "error", err)
	}
	return nil
}
