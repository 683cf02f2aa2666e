// ABOUTME: In-process session store with per-entry expiry.
// ABOUTME: Serves tests and the single-instance fallback when redis is unreachable.

package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in a mutex-guarded map with lazy expiry.
// State is scoped to the running process; it must not be relied upon for
// correctness across multiple instances.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]memoryEntry
}

type memoryEntry struct {
	sess      Session
	expiresAt time.Time
}

// NewMemoryStore creates an in-process store. A non-positive ttl disables
// expiry entirely.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[string]memoryEntry),
	}
}

// Get returns the stored session or Idle when absent or expired.
func (m *MemoryStore) Get(_ context.Context, key string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return Idle()
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.data, key)
		return Idle()
	}
	return entry.sess
}

// Put stores the session, resetting its expiry window.
func (m *MemoryStore) Put(_ context.Context, key string, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{sess: sess}
	if m.ttl > 0 {
		entry.expiresAt = time.Now().Add(m.ttl)
	}
	m.data[key] = entry
	return nil
}

// Clear removes the session for the key.
func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
