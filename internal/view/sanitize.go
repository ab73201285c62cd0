// Package view maps results into render data for the table and gallery
// views. The mapping is pure: no stored state, no network, and every
// remotely sourced text field is sanitized before it can reach a
// terminal. Titles, banners and vulnerability text come from scanned
// hosts and must be treated as hostile input.
package view

import (
	"regexp"
	"strings"
	"unicode"
)

// Placeholder is rendered for absent optional fields so a missing
// value never shows up as a null literal.
const Placeholder = "-"

// Terminal escape sequences embedded in remote text could redraw the
// screen, retitle the window or inject fake output.
var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;:?]*[@-~]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(\x07|\x1b\\)?`)
)

// Sanitize strips escape sequences and control characters and
// collapses whitespace runs into single spaces.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	s = csiPattern.ReplaceAllString(s, "")
	s = oscPattern.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Truncate shortens s to at most max runes, ending in an ellipsis when
// something was cut. Non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}

// Field prepares one remote text field for display: sanitized,
// truncated, and substituted with the placeholder when empty.
func Field(s string, max int) string {
	clean := Truncate(Sanitize(s), max)
	if clean == "" {
		return Placeholder
	}
	return clean
}
