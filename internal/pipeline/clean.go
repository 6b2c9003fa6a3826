package pipeline

import (
	"fmt"
	"regexp"
	"strings"

	"vidscribe/internal/chunking"
	"vidscribe/internal/language"
	"vidscribe/internal/textutil"
)

var (
	timestampLine = regexp.MustCompile(`^\*\*\[[^\]]*\]\*\*\s*$`)
	metaLine      = regexp.MustCompile(`(?i)^\*\*(detected language|language probability)[:：]?\*\*`)
	contentTitle  = regexp.MustCompile(`(?i)^#{1,6}\s*transcription content\s*$`)
)

// StripTranscriptMeta removes timestamps, top-level headings, detection meta
// lines and transcript headings from a raw transcript, leaving spoken text.
func StripTranscriptMeta(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case timestampLine.MatchString(trimmed):
			continue
		case strings.HasPrefix(trimmed, "# "):
			continue
		case metaLine.MatchString(trimmed), contentTitle.MatchString(trimmed):
			continue
		}
		kept = append(kept, line)
	}
	text := chunking.RemoveTranscriptHeadings(strings.Join(kept, "\n"))
	return chunking.NormalizeMarkdown(text)
}

// FallbackSummary is the deterministic overview used when no summary could be
// generated at all.
func FallbackSummary(text, lang string) string {
	paragraphs := chunking.Paragraphs(text)
	chars := len([]rune(text))
	excerpt := textutil.Preview(strings.Join(paragraphs, " "), 300)
	if language.IsChinese(lang) {
		return fmt.Sprintf("**摘要服務暫時無法使用，以下為自動產生的概覽。**\n\n- 內容長度：約 %d 字\n- 段落數：%d\n\n%s", chars, len(paragraphs), excerpt)
	}
	return fmt.Sprintf("**The summary service is unavailable; this is an automatic overview.**\n\n- Length: about %d characters\n- Paragraphs: %d\n\n%s", chars, len(paragraphs), excerpt)
}

// partFallback stands in for a part summary that could not be generated.
func partFallback(part int, text string) string {
	return fmt.Sprintf("Part %d overview: %s", part, textutil.Preview(strings.Join(strings.Fields(text), " "), 200))
}
