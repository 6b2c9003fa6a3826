package chunking

import (
	"regexp"
	"strings"

	"vidscribe/internal/language"
)

var markerPattern = regexp.MustCompile(`(?s)^\s*\[(?:上文續|Context continued)\s*[：:]?.*?\]\s*`)

// ContextMarker wraps the previous chunk's tail. Chinese transcripts get a
// Chinese marker.
func ContextMarker(tail, lang string) string {
	if language.IsChinese(lang) {
		return "[上文續：" + tail + "]"
	}
	return "[Context continued: " + tail + "]"
}

// StripMarker removes a leading context marker from a generator answer. The
// exact marker is tried first, then any marker-shaped prefix.
func StripMarker(out, marker string) string {
	trimmed := strings.TrimSpace(out)
	if marker != "" && strings.HasPrefix(trimmed, marker) {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, marker))
	}
	if loc := markerPattern.FindStringIndex(trimmed); loc != nil {
		return strings.TrimSpace(trimmed[loc[1]:])
	}
	return trimmed
}
