// ABOUTME: Message types and the Log interface for conversation history.
// ABOUTME: Messages are immutable once appended; history is always timestamp-ordered.

package chatlog

import (
	"context"
	"errors"
	"time"
)

// ErrLogUnavailable is returned when the backing store cannot be reached.
// Readers treat it as "no data" rather than failing the request.
var ErrLogUnavailable = errors.New("message log unavailable")

// Direction indicates whether a message was received from or sent to the
// subscriber.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Kind discriminates the message payload shape. Each kind carries exactly
// the fields it requires: Text for all kinds, Options for interactive
// sends, MediaLink/Caption for media.
type Kind string

const (
	KindText     Kind = "text"
	KindButtons  Kind = "buttons"
	KindList     Kind = "list"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
)

// Message is one entry in a conversation's history. Inbound ids are
// provider-assigned; outbound ids are provider-assigned on success and
// locally synthesized on failure.
type Message struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Direction       Direction `json:"direction"`
	Timestamp       time.Time `json:"timestamp"`
	Kind            Kind      `json:"kind"`
	Text            string    `json:"text"`

	// Options holds the option labels offered by an interactive send, so
	// the operator console can see what the subscriber was shown.
	Options []string `json:"options,omitempty"`

	MediaLink string `json:"media_link,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// ChatSummary is one row of the recency-ordered conversation index.
type ChatSummary struct {
	ConversationKey string    `json:"conversation_key"`
	LastActivity    time.Time `json:"last_activity"`
}

// Log is the message history contract. Append writes the message and bumps
// the conversation's recency in the same logical operation, trimming the
// conversation to the configured capacity. History returns up to limit of
// the most recent messages in ascending timestamp order, reconciling the
// key against known format variants before giving up; a conversation with
// no matching keys yields an empty slice, not an error.
type Log interface {
	Append(ctx context.Context, msg *Message) error
	History(ctx context.Context, conversationKey string, limit int) ([]*Message, error)
	RecentChats(ctx context.Context, limit int) ([]ChatSummary, error)
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
	maxRecentChats      = 50
)

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func clampChatLimit(limit int) int {
	if limit <= 0 || limit > maxRecentChats {
		return maxRecentChats
	}
	return limit
}
