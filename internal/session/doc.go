// Package session persists per-conversation flow state with expiry.
//
// Flow state and step identifiers are defined here rather than in the flow
// engine so that storage does not depend on flow internals.
package session
