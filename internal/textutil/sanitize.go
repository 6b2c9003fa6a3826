package textutil

import (
	"strings"
	"unicode"
)

const maxTitleRunes = 80

// SanitizeTitle turns a media title into a filename fragment. Letters, digits,
// underscores and hyphens are kept, whitespace runs collapse to a single
// underscore and everything else is dropped. The result is capped at 80 runes
// and falls back to "untitled".
func SanitizeTitle(title string) string {
	var b strings.Builder
	pendingSpace := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r), r == '_', r == '-':
		default:
			continue
		}
		if pendingSpace && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingSpace = false
		b.WriteRune(r)
	}
	out := strings.Trim(b.String(), "._-")
	out = Truncate(out, maxTitleRunes)
	if out == "" {
		return "untitled"
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Preview returns the first n runes of s followed by "..." when s is longer.
func Preview(s string, n int) string {
	cut := Truncate(s, n)
	if len(cut) < len(s) {
		return cut + "..."
	}
	return cut
}
