// ABOUTME: Field validation and normalization rules for intake flows.
// ABOUTME: Pure helpers; invalid input never mutates session state.

package flow

import (
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// accentFold maps the accented vowels and ñ that appear in user input to
// their bare forms, enough for command and option matching.
var accentFold = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// NormalizeText lowercases, trims, and folds accents for matching against
// command and option dictionaries.
func NormalizeText(s string) string {
	return accentFold.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// ValidName accepts any trimmed input of at least two characters.
func ValidName(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, len([]rune(t)) >= 2
}

// ValidDocument strips non-digit characters and accepts the rest when it is
// between 6 and 9 digits long. Returns the digit-only form.
func ValidDocument(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	return digits, len(digits) >= 6 && len(digits) <= 9
}

// NormalizeDate accepts DD/MM/YYYY or YYYY-MM-DD and returns the date in
// the canonical YYYY-MM-DD form.
func NormalizeDate(s string) (string, bool) {
	t := strings.TrimSpace(s)
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if parsed, err := time.Parse(layout, t); err == nil {
			return parsed.Format("2006-01-02"), true
		}
	}
	return "", false
}

// ValidEmail accepts a conventional local@domain.tld shape.
func ValidEmail(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, emailPattern.MatchString(t)
}

var yesWords = map[string]bool{"si": true, "ok": true, "dale": true, "correcto": true, "confirmo": true, "yes": true}
var noWords = map[string]bool{"no": true, "nop": true, "incorrecto": true}

// ParseConfirmation classifies input as a positive or negative
// confirmation. ok is false when the input is neither.
func ParseConfirmation(s string) (confirmed, ok bool) {
	t := NormalizeText(s)
	if yesWords[t] {
		return true, true
	}
	if noWords[t] {
		return false, true
	}
	return false, false
}

var cancelWords = map[string]bool{"cancelar": true, "cancel": true, "salir": true, "menu": true, "reset": true, "volver": true}

// IsCancel reports whether the input is a recognized cancel/reset keyword.
func IsCancel(s string) bool {
	return cancelWords[NormalizeText(s)]
}
