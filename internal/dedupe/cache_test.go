// ABOUTME: Tests for the in-process idempotency ledger.
// ABOUTME: Covers duplicate detection, marker replacement, TTL, and eviction.

package dedupe

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_DuplicateDetected(t *testing.T) {
	c := NewCache(time.Minute, 100)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.CheckAndMark(ctx, "+541170000001", "wamid.1"))
	assert.True(t, c.CheckAndMark(ctx, "+541170000001", "wamid.1"))
}

func TestCache_NewEventReplacesMarker(t *testing.T) {
	c := NewCache(time.Minute, 100)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.CheckAndMark(ctx, "k", "wamid.1"))
	assert.False(t, c.CheckAndMark(ctx, "k", "wamid.2"))
	assert.True(t, c.CheckAndMark(ctx, "k", "wamid.2"))

	// The marker holds only the last id: the provider redelivers the same
	// event back-to-back, not interleaved with newer ones.
	assert.False(t, c.CheckAndMark(ctx, "k", "wamid.1"))
}

func TestCache_ConversationsAreIndependent(t *testing.T) {
	c := NewCache(time.Minute, 100)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.CheckAndMark(ctx, "a", "wamid.1"))
	assert.False(t, c.CheckAndMark(ctx, "b", "wamid.1"))
}

func TestCache_ExpiredMarkerIsNotDuplicate(t *testing.T) {
	c := NewCache(10*time.Millisecond, 100)
	defer c.Close()
	ctx := context.Background()

	assert.False(t, c.CheckAndMark(ctx, "k", "wamid.1"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.CheckAndMark(ctx, "k", "wamid.1"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := NewCache(time.Minute, 3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c.CheckAndMark(ctx, fmt.Sprintf("conv-%d", i), "wamid.1")
	}

	// conv-0 was evicted, so its event reads as new again
	assert.False(t, c.CheckAndMark(ctx, "conv-0", "wamid.1"))
	// conv-3 is still tracked
	assert.True(t, c.CheckAndMark(ctx, "conv-3", "wamid.1"))
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(time.Minute, 1000)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("conv-%d", n)
			for j := 0; j < 100; j++ {
				c.CheckAndMark(ctx, key, fmt.Sprintf("wamid.%d", j))
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache(time.Minute, 10)
	c.Close()
	c.Close()
}
