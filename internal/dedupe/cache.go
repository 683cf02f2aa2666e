// ABOUTME: In-process idempotency ledger tracking the last event id per conversation.
// ABOUTME: TTL-based and size-limited; oldest conversations are evicted first.

package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Ledger records the last processed inbound event id per conversation.
// CheckAndMark returns true when the event was already processed and must
// be short-circuited to an acknowledgement with no further side effects.
type Ledger interface {
	CheckAndMark(ctx context.Context, conversationKey, eventID string) bool
}

type cacheEntry struct {
	lastEventID string
	timestamp   time.Time
	element     *list.Element
}

// Cache is a thread-safe, TTL-based, size-limited in-process Ledger.
// A doubly-linked list maintains insertion order for O(1) eviction. It is
// the fallback when the shared marker store is unreachable, and sufficient
// on its own for single-instance deployments.
type Cache struct {
	mu      sync.Mutex
	markers map[string]*cacheEntry
	order   *list.List // conversation keys, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewCache creates a ledger cache with the given TTL and maximum number of
// tracked conversations. A background goroutine reaps expired entries.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		markers: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// CheckAndMark atomically compares eventID against the conversation's last
// processed event id, recording it when new. Returns true for a duplicate.
func (c *Cache) CheckAndMark(_ context.Context, conversationKey, eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.markers[conversationKey]
	if ok && entry.lastEventID == eventID && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(conversationKey, eventID)
	return false
}

// markLocked records the marker. Must be called with mu held.
func (c *Cache) markLocked(conversationKey, eventID string) {
	now := time.Now()

	if entry, exists := c.markers[conversationKey]; exists {
		entry.lastEventID = eventID
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.markers) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(conversationKey)
	c.markers[conversationKey] = &cacheEntry{
		lastEventID: eventID,
		timestamp:   now,
		element:     elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.markers, key)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.markers {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.markers, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
