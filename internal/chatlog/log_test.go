// ABOUTME: Tests for the message log implementations.
// ABOUTME: Covers ordering, bounded growth, variant reconciliation, and the recency index.

package chatlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteLog(t *testing.T, capacity int) *SQLiteLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatlog.db")
	log, err := NewSQLiteLog(path, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return log
}

// both runs the same assertions against the SQLite and in-memory logs.
func both(t *testing.T, capacity int, fn func(t *testing.T, log Log)) {
	t.Run("sqlite", func(t *testing.T) {
		fn(t, setupSQLiteLog(t, capacity))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryLog(capacity))
	})
}

func msgAt(key, id string, dir Direction, ts time.Time, text string) *Message {
	return &Message{
		ID:              id,
		ConversationKey: key,
		Direction:       dir,
		Timestamp:       ts,
		Kind:            KindText,
		Text:            text,
	}
}

func TestLog_HistoryAscendingByTimestamp(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		// Append out of order on purpose
		require.NoError(t, log.Append(ctx, msgAt("+541170000001", "m2", DirectionOut, base.Add(2*time.Second), "second")))
		require.NoError(t, log.Append(ctx, msgAt("+541170000001", "m1", DirectionIn, base, "first")))
		require.NoError(t, log.Append(ctx, msgAt("+541170000001", "m3", DirectionIn, base.Add(4*time.Second), "third")))

		msgs, err := log.History(ctx, "+541170000001", 100)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "first", msgs[0].Text)
		assert.Equal(t, "second", msgs[1].Text)
		assert.Equal(t, "third", msgs[2].Text)
		for i := 1; i < len(msgs); i++ {
			assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp))
		}
	})
}

func TestLog_BoundedGrowth(t *testing.T) {
	const capacity = 5
	both(t, capacity, func(t *testing.T, log Log) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < capacity+3; i++ {
			msg := msgAt("+541170000001", fmt.Sprintf("m%02d", i), DirectionIn, base.Add(time.Duration(i)*time.Second), fmt.Sprintf("msg %d", i))
			require.NoError(t, log.Append(ctx, msg))
		}

		msgs, err := log.History(ctx, "+541170000001", maxHistoryLimit)
		require.NoError(t, err)
		require.Len(t, msgs, capacity)
		// Exactly the most recent entries survive
		assert.Equal(t, "msg 3", msgs[0].Text)
		assert.Equal(t, "msg 7", msgs[capacity-1].Text)
	})
}

func TestLog_HistoryLimitReturnsMostRecent(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		for i := 0; i < 10; i++ {
			require.NoError(t, log.Append(ctx, msgAt("k", fmt.Sprintf("m%02d", i), DirectionIn, base.Add(time.Duration(i)*time.Second), fmt.Sprintf("msg %d", i))))
		}

		msgs, err := log.History(ctx, "k", 4)
		require.NoError(t, err)
		require.Len(t, msgs, 4)
		assert.Equal(t, "msg 6", msgs[0].Text)
		assert.Equal(t, "msg 9", msgs[3].Text)
	})
}

func TestLog_HistoryReconcilesKeyVariants(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		// History written under the marked variant before a normalization
		// mode change
		require.NoError(t, log.Append(ctx, msgAt("+5491170442131", "m1", DirectionIn, now, "old scheme")))

		msgs, err := log.History(ctx, "+541170442131", 100)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "old scheme", msgs[0].Text)
	})
}

func TestLog_HistoryFallsBackToDigitSuffixScan(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Millisecond)

		// Key stored under a scheme no variant reproduces (bare digits,
		// marker, no plus prefix but extra prefix digits)
		require.NoError(t, log.Append(ctx, msgAt("00549-11-7044-2131", "m1", DirectionIn, now, "drifted scheme")))

		msgs, err := log.History(ctx, "+541170442131", 100)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "drifted scheme", msgs[0].Text)
	})
}

func TestLog_HistoryUnknownKeyIsEmptyNotError(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		msgs, err := log.History(context.Background(), "+19990000000", 100)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestLog_RecentChatsDescendingByActivity(t *testing.T) {
	both(t, 500, func(t *testing.T, log Log) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Millisecond)

		require.NoError(t, log.Append(ctx, msgAt("+541170000001", "a1", DirectionIn, base, "hola")))
		require.NoError(t, log.Append(ctx, msgAt("+541170000002", "b1", DirectionIn, base.Add(time.Second), "hola")))
		require.NoError(t, log.Append(ctx, msgAt("+541170000001", "a2", DirectionOut, base.Add(2*time.Second), "menu")))

		chats, err := log.RecentChats(ctx, 50)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, "+541170000001", chats[0].ConversationKey)
		assert.Equal(t, "+541170000002", chats[1].ConversationKey)
	})
}

func TestSQLiteLog_RoundTripsInteractiveFields(t *testing.T) {
	log := setupSQLiteLog(t, 500)
	ctx := context.Background()

	msg := &Message{
		ID:              "out-1",
		ConversationKey: "+541170000001",
		Direction:       DirectionOut,
		Timestamp:       time.Now().UTC().Truncate(time.Millisecond),
		Kind:            KindButtons,
		Text:            "Elegí una opción:",
		Options:         []string{"Información de sedes", "Solicitar envío de estudio"},
	}
	require.NoError(t, log.Append(ctx, msg))

	msgs, err := log.History(ctx, "+541170000001", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, KindButtons, msgs[0].Kind)
	assert.Equal(t, msg.Options, msgs[0].Options)
}

func TestSQLiteLog_RoundTripsMediaFields(t *testing.T) {
	log := setupSQLiteLog(t, 500)
	ctx := context.Background()

	msg := &Message{
		ID:              "out-2",
		ConversationKey: "+541170000001",
		Direction:       DirectionOut,
		Timestamp:       time.Now().UTC().Truncate(time.Millisecond),
		Kind:            KindDocument,
		Text:            "[document]",
		MediaLink:       "https://files.example.com/estudio.pdf",
		Caption:         "Tu estudio",
	}
	require.NoError(t, log.Append(ctx, msg))

	msgs, err := log.History(ctx, "+541170000001", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "https://files.example.com/estudio.pdf", msgs[0].MediaLink)
	assert.Equal(t, "Tu estudio", msgs[0].Caption)
}
