// Package flow drives the multi-step guided intake conversations.
//
// Each flow is a finite-state machine over an explicit step enumeration
// with a transition table, so adding a step cannot silently fall through
// to a default branch.
package flow
