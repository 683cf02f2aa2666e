// ABOUTME: Subscriber identifier normalization with a configurable mobile-marker mode.
// ABOUTME: All lookups for one subscriber must resolve to one canonical conversation key.

package identity

import (
	"errors"
	"strings"
)

// Mode selects how the mobile marker digit is normalized. Provider numbers
// for the supported region arrive both with and without the "9" mobile
// marker after the country code; there is no single correct rule, so the
// policy is configurable.
type Mode string

const (
	// ModeStripMarker rewrites +549... to +54... (canonical form has no marker).
	ModeStripMarker Mode = "strip-mobile-marker"
	// ModeAddMarker rewrites +54... to +549... (canonical form keeps the marker).
	ModeAddMarker Mode = "add-mobile-marker"
)

const (
	countryCode  = "+54"
	mobileMarker = "9"
)

// ErrUnparsable is returned for inputs that cannot be reduced to a usable
// subscriber number. Callers must drop the event.
var ErrUnparsable = errors.New("unparsable subscriber identifier")

// Normalizer canonicalizes raw subscriber identifiers under one Mode.
type Normalizer struct {
	mode Mode
}

// New returns a Normalizer for the given mode. Unknown modes fall back to
// ModeStripMarker, which matches the provider's default number format.
func New(mode Mode) *Normalizer {
	if mode != ModeAddMarker {
		mode = ModeStripMarker
	}
	return &Normalizer{mode: mode}
}

// Mode reports the configured normalization mode.
func (n *Normalizer) Mode() Mode { return n.mode }

// Canonicalize reduces a raw identifier to the canonical conversation key.
// The result always carries a leading "+". Canonicalize is idempotent:
// feeding a canonical key back in returns it unchanged.
func (n *Normalizer) Canonicalize(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrUnparsable
	}
	if !strings.HasPrefix(id, "+") {
		id = "+" + id
	}
	if len(digitsOf(id)) < 7 {
		return "", ErrUnparsable
	}

	switch n.mode {
	case ModeAddMarker:
		if strings.HasPrefix(id, countryCode) && !strings.HasPrefix(id, countryCode+mobileMarker) {
			id = countryCode + mobileMarker + strings.TrimPrefix(id, countryCode)
		}
	default:
		if strings.HasPrefix(id, countryCode+mobileMarker) {
			id = countryCode + strings.TrimPrefix(id, countryCode+mobileMarker)
		}
	}
	return id, nil
}

// SendAddress converts a conversation key back into an identifier the
// provider accepts. The most recently observed raw address wins; without
// one the canonical key is reused with the leading "+" stripped, which is
// the shape the provider assigns inbound.
func SendAddress(key, lastKnownRaw string) string {
	if lastKnownRaw != "" {
		return strings.TrimPrefix(lastKnownRaw, "+")
	}
	return strings.TrimPrefix(key, "+")
}

// Variants enumerates the known surface formats of one conversation key:
// both mobile-marker forms, each with and without the leading "+". Used by
// the message log to reconcile history written under an older key scheme.
func Variants(key string) []string {
	forms := map[string]struct{}{}
	add := func(s string) {
		if s != "" {
			forms[s] = struct{}{}
		}
	}

	plused := key
	if !strings.HasPrefix(plused, "+") {
		plused = "+" + plused
	}

	var marked, unmarked string
	switch {
	case strings.HasPrefix(plused, countryCode+mobileMarker):
		marked = plused
		unmarked = countryCode + strings.TrimPrefix(plused, countryCode+mobileMarker)
	case strings.HasPrefix(plused, countryCode):
		unmarked = plused
		marked = countryCode + mobileMarker + strings.TrimPrefix(plused, countryCode)
	default:
		marked = plused
		unmarked = plused
	}

	for _, f := range []string{marked, unmarked} {
		add(f)
		add(strings.TrimPrefix(f, "+"))
	}

	out := make([]string, 0, len(forms))
	for f := range forms {
		out = append(out, f)
	}
	return out
}

// DigitSuffix returns the last n digits of a key, or all of its digits when
// it has fewer than n. Used as the last-resort history reconciliation match.
func DigitSuffix(key string, n int) string {
	digits := digitsOf(key)
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
