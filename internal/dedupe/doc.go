// Package dedupe suppresses duplicate processing of inbound provider events
// by tracking the last processed event id per conversation.
package dedupe
