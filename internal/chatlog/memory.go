// ABOUTME: In-process implementation of the message log.
// ABOUTME: Same semantics as the SQLite log; single-instance fallback and test double.

package chatlog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clinicops/intake-gateway/internal/identity"
)

// MemoryLog implements Log in process memory. It backs tests and the
// degraded mode used when the database cannot be opened; its contents are
// lost on restart and never shared across instances.
type MemoryLog struct {
	mu       sync.Mutex
	capacity int
	messages map[string][]*Message
	recency  map[string]int64 // unix millis of last activity
}

// NewMemoryLog creates an in-process log with the given per-conversation
// capacity.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemoryLog{
		capacity: capacity,
		messages: make(map[string][]*Message),
		recency:  make(map[string]int64),
	}
}

// Append stores the message, keeps the conversation sorted and bounded,
// and bumps its recency.
func (m *MemoryLog) Append(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := msg.ConversationKey
	msgs := append(m.messages[key], msg)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	if len(msgs) > m.capacity {
		msgs = msgs[len(msgs)-m.capacity:]
	}
	m.messages[key] = msgs

	ts := msg.Timestamp.UnixMilli()
	if ts > m.recency[key] {
		m.recency[key] = ts
	}
	return nil
}

// History returns up to limit most recent messages ascending by timestamp,
// with the same key reconciliation order as the SQLite log.
func (m *MemoryLog) History(_ context.Context, conversationKey string, limit int) ([]*Message, error) {
	limit = clampHistoryLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	if msgs := m.collect([]string{conversationKey}, limit); len(msgs) > 0 {
		return msgs, nil
	}
	if msgs := m.collect(identity.Variants(conversationKey), limit); len(msgs) > 0 {
		return msgs, nil
	}

	suffix := identity.DigitSuffix(conversationKey, suffixLen)
	if suffix == "" {
		return []*Message{}, nil
	}
	var keys []string
	for key := range m.messages {
		if strings.HasSuffix(identity.DigitSuffix(key, suffixLen), suffix) {
			keys = append(keys, key)
		}
	}
	return m.collect(keys, limit), nil
}

// collect merges and orders messages for the keys. Must be called with mu held.
func (m *MemoryLog) collect(keys []string, limit int) []*Message {
	var all []*Message
	for _, key := range keys {
		all = append(all, m.messages[key]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	if all == nil {
		all = []*Message{}
	}
	return all
}

// RecentChats returns conversations ordered by most recent activity.
func (m *MemoryLog) RecentChats(_ context.Context, limit int) ([]ChatSummary, error) {
	limit = clampChatLimit(limit)

	m.mu.Lock()
	defer m.mu.Unlock()

	chats := make([]ChatSummary, 0, len(m.recency))
	for key, ts := range m.recency {
		chats = append(chats, ChatSummary{
			ConversationKey: key,
			LastActivity:    time.UnixMilli(ts).UTC(),
		})
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].LastActivity.After(chats[j].LastActivity)
	})
	if len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}
