package whisperx

import (
	"fmt"
	"strings"
)

// FormatMarkdown renders segments as the raw transcript document.
func FormatMarkdown(lang string, segments []Segment) string {
	var b strings.Builder
	b.WriteString("# Video Transcription\n\n")
	if lang == "" {
		lang = "unknown"
	}
	fmt.Fprintf(&b, "**Detected Language:** %s\n\n", lang)
	b.WriteString("## Transcription Content\n\n")
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "**[%s - %s]**\n\n%s\n\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), text)
	}
	return b.String()
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
