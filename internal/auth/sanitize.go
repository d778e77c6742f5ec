package auth

import (
	"strings"
	"unicode"
)

// SanitizeName trims a name and strips control characters. Output escaping
// is left to the templates that render it.
func SanitizeName(name string) string {
	return strings.TrimSpace(removeControlChars(name))
}

// removeControlChars removes all control characters, newlines included.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
