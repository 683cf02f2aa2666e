// ABOUTME: SQLite implementation of the message log using modernc.org/sqlite.
// ABOUTME: Bounded per-conversation history with a recency index and variant reconciliation.

package chatlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinicops/intake-gateway/internal/identity"
)

// suffixLen is how many trailing digits must match for the broad-scan
// reconciliation fallback.
const suffixLen = 8

// SQLiteLog implements Log on a SQLite database. Timestamps are stored as
// unix milliseconds so ordering never depends on string formats.
type SQLiteLog struct {
	db       *sql.DB
	capacity int
	logger   *slog.Logger
}

// NewSQLiteLog opens (or creates) the message log at the given path and
// bootstraps the schema. Parent directories are created if needed.
// capacity is the maximum number of messages retained per conversation.
func NewSQLiteLog(path string, capacity int) (*SQLiteLog, error) {
	logger := slog.Default().With("component", "chatlog")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if capacity <= 0 {
		capacity = 500
	}

	l := &SQLiteLog{db: db, capacity: capacity, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("message log initialized", "path", path, "capacity", capacity)
	return l, nil
}

func (l *SQLiteLog) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_key TEXT NOT NULL,
			direction TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT 'text',
			text TEXT NOT NULL,
			options TEXT,
			media_link TEXT,
			caption TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_key, timestamp);

		CREATE TABLE IF NOT EXISTS chat_index (
			conversation_key TEXT PRIMARY KEY,
			last_activity INTEGER NOT NULL
		);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

// Append writes the message, bumps the conversation's recency, and trims
// the conversation to capacity, all in one transaction.
func (l *SQLiteLog) Append(ctx context.Context, msg *Message) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback()

	var options any
	if len(msg.Options) > 0 {
		raw, err := json.Marshal(msg.Options)
		if err != nil {
			return fmt.Errorf("encoding options: %w", err)
		}
		options = string(raw)
	}

	ts := msg.Timestamp.UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_key, direction, timestamp, kind, text, options, media_link, caption)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationKey, string(msg.Direction), ts,
		string(msg.Kind), msg.Text, options, nullable(msg.MediaLink), nullable(msg.Caption),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_index (conversation_key, last_activity) VALUES (?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET last_activity = excluded.last_activity
		WHERE excluded.last_activity > chat_index.last_activity`,
		msg.ConversationKey, ts,
	)
	if err != nil {
		return fmt.Errorf("updating chat index: %w", err)
	}

	// Keep only the newest capacity entries for this conversation
	_, err = tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_key = ? AND id NOT IN (
			SELECT id FROM messages WHERE conversation_key = ?
			ORDER BY timestamp DESC, id DESC LIMIT ?)`,
		msg.ConversationKey, msg.ConversationKey, l.capacity,
	)
	if err != nil {
		return fmt.Errorf("trimming conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	l.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_key", msg.ConversationKey,
		"direction", msg.Direction,
		"kind", msg.Kind,
	)
	return nil
}

// History returns up to limit of the most recent messages in ascending
// timestamp order. Lookup tries the exact key, then its known format
// variants, then a trailing-digit scan of stored conversation keys.
func (l *SQLiteLog) History(ctx context.Context, conversationKey string, limit int) ([]*Message, error) {
	limit = clampHistoryLimit(limit)

	msgs, err := l.queryHistory(ctx, []string{conversationKey}, limit)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}

	msgs, err = l.queryHistory(ctx, identity.Variants(conversationKey), limit)
	if err != nil || len(msgs) > 0 {
		return msgs, err
	}

	// Last resort: any stored key sharing the trailing digits. Linear in
	// the number of conversations.
	keys, err := l.keysBySuffix(ctx, identity.DigitSuffix(conversationKey, suffixLen))
	if err != nil || len(keys) == 0 {
		return []*Message{}, err
	}
	return l.queryHistory(ctx, keys, limit)
}

func (l *SQLiteLog) queryHistory(ctx context.Context, keys []string, limit int) ([]*Message, error) {
	if len(keys) == 0 {
		return []*Message{}, nil
	}

	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, limit)

	// Newest window first, then reversed so callers read ascending
	query := fmt.Sprintf(`
		SELECT id, conversation_key, direction, timestamp, kind, text, options, media_link, caption
		FROM messages
		WHERE conversation_key IN (%s)
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, placeholders)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs, nil
}

func (l *SQLiteLog) keysBySuffix(ctx context.Context, suffix string) ([]string, error) {
	if suffix == "" {
		return nil, nil
	}

	// Full index scan, filtered on digits only so punctuation in stored
	// keys cannot hide a match.
	rows, err := l.db.QueryContext(ctx, `SELECT conversation_key FROM chat_index`)
	if err != nil {
		return nil, fmt.Errorf("scanning keys by suffix: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		if strings.HasSuffix(identity.DigitSuffix(k, suffixLen), suffix) {
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}

// RecentChats returns conversations ordered by most recent activity.
func (l *SQLiteLog) RecentChats(ctx context.Context, limit int) ([]ChatSummary, error) {
	limit = clampChatLimit(limit)

	rows, err := l.db.QueryContext(ctx, `
		SELECT conversation_key, last_activity FROM chat_index
		ORDER BY last_activity DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying chat index: %w", err)
	}
	defer rows.Close()

	chats := []ChatSummary{}
	for rows.Next() {
		var key string
		var ts int64
		if err := rows.Scan(&key, &ts); err != nil {
			return nil, fmt.Errorf("scanning chat summary: %w", err)
		}
		chats = append(chats, ChatSummary{
			ConversationKey: key,
			LastActivity:    time.UnixMilli(ts).UTC(),
		})
	}
	return chats, rows.Err()
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	msg := &Message{}
	var ts int64
	var direction, kind string
	var options, mediaLink, caption sql.NullString

	if err := rows.Scan(
		&msg.ID, &msg.ConversationKey, &direction, &ts,
		&kind, &msg.Text, &options, &mediaLink, &caption,
	); err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	msg.Direction = Direction(direction)
	msg.Kind = Kind(kind)
	msg.Timestamp = time.UnixMilli(ts).UTC()
	if options.Valid && options.String != "" {
		if err := json.Unmarshal([]byte(options.String), &msg.Options); err != nil {
			return nil, fmt.Errorf("decoding options: %w", err)
		}
	}
	msg.MediaLink = mediaLink.String
	msg.Caption = caption.String
	return msg, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
