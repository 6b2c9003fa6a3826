package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	paragraphBreak  = regexp.MustCompile(`\n[ \t]*\n`)
	excessNewlines  = regexp.MustCompile(`\n{3,}`)
	headingNoBlank  = regexp.MustCompile(`(?m)^(#{1,6}[ \t]+.*)\n([^\n#])`)
	transcriptTitle = regexp.MustCompile(`(?i)^#{1,6}\s*transcript(\s+text)?\s*$`)
)

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isClauseEnd(r rune) bool {
	switch r {
	case ',', ';', '，', '；':
		return true
	}
	return false
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// Paragraphs splits text on blank lines and drops empty paragraphs.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceSpans returns contiguous [start,end) rune spans covering r, each
// ending after a run of sentence punctuation and the whitespace following it.
func sentenceSpans(r []rune) [][2]int {
	var spans [][2]int
	start := 0
	i := 0
	for i < len(r) {
		if !isSentenceEnd(r[i]) {
			i++
			continue
		}
		for i < len(r) && isSentenceEnd(r[i]) {
			i++
		}
		for i < len(r) && unicode.IsSpace(r[i]) {
			i++
		}
		spans = append(spans, [2]int{start, i})
		start = i
	}
	if start < len(r) {
		spans = append(spans, [2]int{start, len(r)})
	}
	return spans
}

// Sentences splits text into trimmed sentences, keeping terminal punctuation.
func Sentences(text string) []string {
	r := []rune(text)
	var out []string
	for _, span := range sentenceSpans(r) {
		if s := strings.TrimSpace(string(r[span[0]:span[1]])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnforceParagraphCap re-splits paragraphs longer than limit runes at sentence
// boundaries. Text inside a paragraph is never reordered or rewritten; a
// paragraph without a usable boundary is left whole.
func EnforceParagraphCap(text string, limit int) string {
	if text == "" || limit <= 0 {
		return text
	}
	var out []string
	for _, para := range Paragraphs(text) {
		r := []rune(para)
		if len(r) <= limit {
			out = append(out, para)
			continue
		}
		start := 0
		for _, span := range sentenceSpans(r) {
			if span[0] > start && span[1]-start > limit {
				if piece := strings.TrimSpace(string(r[start:span[0]])); piece != "" {
					out = append(out, piece)
				}
				start = span[0]
			}
		}
		if piece := strings.TrimSpace(string(r[start:])); piece != "" {
			out = append(out, piece)
		}
	}
	return strings.Join(out, "\n\n")
}

// NormalizeMarkdown puts a blank line after headings, collapses runs of blank
// lines and trims the result.
func NormalizeMarkdown(text string) string {
	if text == "" {
		return text
	}
	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = headingNoBlank.ReplaceAllString(out, "$1\n\n$2")
	out = excessNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// RemoveTranscriptHeadings drops heading lines that only say "Transcript".
func RemoveTranscriptHeadings(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if transcriptTitle.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// FallbackFormat groups sentences into paragraphs without a generator. A
// paragraph closes when it would exceed limit runes, when it passes half the
// limit with at least three sentences, or at six sentences.
func FallbackFormat(text string, limit int) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if limit <= 0 {
		limit = 400
	}
	var paras []string
	cur := ""
	count := 0
	for _, s := range Sentences(text) {
		candidate := s
		if cur != "" {
			candidate = cur + " " + s
		}
		count++
		n := runeLen(candidate)
		split := (n > limit && cur != "") || (n > limit/2 && count >= 3) || count >= 6
		if split && cur != "" {
			paras = append(paras, cur)
			cur = s
			count = 1
			continue
		}
		cur = candidate
	}
	if strings.TrimSpace(cur) != "" {
		paras = append(paras, cur)
	}
	return NormalizeMarkdown(strings.Join(paras, "\n\n"))
}
