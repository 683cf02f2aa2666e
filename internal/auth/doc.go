// Package auth guards the operator surface with a shared secret and
// short-lived HS256 tokens minted from it.
package auth
