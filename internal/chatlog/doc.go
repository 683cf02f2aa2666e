// Package chatlog stores the bounded, append-only, timestamp-ordered
// message history per conversation, plus a global recency index of
// conversations for the operator console.
package chatlog
