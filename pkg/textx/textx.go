// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
// Invalid UTF-8 sequences are dropped.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size <= 1 {
				continue
			}
		}
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseSpaces sanitizes s and joins its fields with single spaces.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(SanitizeText(s)), " ")
}

// FirstWord returns the first whitespace-separated word of s, or "".
func FirstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Slug turns s into a lowercase file-name-safe token made of letters, digits, '-'
// and '_'. Empty input yields "".
func Slug(s string) string {
	var b strings.Builder
	lastSep := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			lastSep = false
		case !lastSep:
			b.WriteByte('_')
			lastSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}
