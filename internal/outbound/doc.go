// Package outbound sends messages to the messaging provider and records
// every send in the message log, degrading rich interactive messages to
// plain numbered text menus when delivery fails.
package outbound
