// ABOUTME: Session type and Store interface for per-conversation flow state.
// ABOUTME: Absent or unreadable sessions always degrade to Idle, never to an error.

package session

import (
	"context"
	"time"
)

// FlowState names the flow a conversation is currently in.
type FlowState string

// Step identifies a position within a flow's step enumeration.
type Step string

// Field is a key in a session's collected data map.
type Field string

const (
	// StateIdle means no flow is active for the conversation.
	StateIdle FlowState = "idle"
	// StepNone is the step value outside any flow.
	StepNone Step = ""
)

// Session is the active multi-step interaction state for one conversation.
// A conversation holds at most one session; starting a flow overwrites any
// prior session wholesale.
type Session struct {
	State     FlowState        `json:"state"`
	Step      Step             `json:"step"`
	Data      map[Field]string `json:"data,omitempty"`
	StartedAt time.Time        `json:"started_at,omitzero"`

	// LastAddress is the most recently observed raw provider address for
	// the conversation, preferred for outbound delivery.
	LastAddress string `json:"last_address,omitempty"`
}

// Idle returns a fresh idle session, preserving nothing.
func Idle() Session {
	return Session{State: StateIdle, Step: StepNone}
}

// IsIdle reports whether no flow is active.
func (s Session) IsIdle() bool {
	return s.State == "" || s.State == StateIdle
}

// Set records a collected field value, allocating the data map on first use.
func (s *Session) Set(field Field, value string) {
	if s.Data == nil {
		s.Data = make(map[Field]string)
	}
	s.Data[field] = value
}

// Store is the persistence contract for sessions. Implementations must make
// Get total: a missing, expired, or unreadable session comes back as Idle.
type Store interface {
	Get(ctx context.Context, key string) Session
	Put(ctx context.Context, key string, sess Session) error
	Clear(ctx context.Context, key string) error
}
