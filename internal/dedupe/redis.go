// ABOUTME: Redis-backed idempotency ledger shared across instances.
// ABOUTME: Plain read-then-write; the narrow race window is an accepted tradeoff.

package dedupe

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps the last processed event id per conversation under
// seen:<key> with a TTL. The provider delivers each conversation's events
// through a single queue, so a read-then-write marker is an adequate
// idempotency aid; it is not a correctness guarantee under concurrent
// instances. Redis failures degrade to an in-process cache.
type RedisLedger struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *Cache
	logger   *slog.Logger
}

// NewRedisLedger creates a ledger over the given redis client.
func NewRedisLedger(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLedger{
		client:   client,
		ttl:      ttl,
		fallback: NewCache(ttl, 10000),
		logger:   logger.With("component", "dedupe"),
	}
}

func seenKey(conversationKey string) string { return "seen:" + conversationKey }

// CheckAndMark reports whether eventID matches the conversation's last
// processed event, recording it as the new marker when it does not.
func (r *RedisLedger) CheckAndMark(ctx context.Context, conversationKey, eventID string) bool {
	last, err := r.client.Get(ctx, seenKey(conversationKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("redis get failed, using in-process ledger", "key", conversationKey, "error", err)
		return r.fallback.CheckAndMark(ctx, conversationKey, eventID)
	}
	if last == eventID {
		return true
	}
	if err := r.client.Set(ctx, seenKey(conversationKey), eventID, r.ttl).Err(); err != nil {
		r.logger.Warn("redis set failed, marking in-process only", "key", conversationKey, "error", err)
		r.fallback.CheckAndMark(ctx, conversationKey, eventID)
	}
	return false
}

// Close releases the in-process fallback cache.
func (r *RedisLedger) Close() {
	r.fallback.Close()
}
