// Package identity canonicalizes raw subscriber identifiers into stable
// conversation keys and reverses them into provider send addresses.
package identity
