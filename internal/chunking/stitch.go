package chunking

import (
	"slices"
	"strings"
	"unicode"
)

// Stitch joins the outputs of chunks with blank lines and normalizes
// paragraphs. An output that repeats the context it was given has that echo
// removed; outputs whose head is the chunk's own text are kept whole.
func (e *Engine) Stitch(chunks []Chunk, outputs []string) string {
	kept := make([]string, 0, len(outputs))
	for i, out := range outputs {
		cur := strings.TrimSpace(out)
		if cur == "" {
			continue
		}
		if len(kept) > 0 && i < len(chunks) {
			cur = e.trimEcho(kept[len(kept)-1], chunks[i], cur)
			if cur == "" {
				continue
			}
		}
		kept = append(kept, cur)
	}
	merged := strings.Join(kept, "\n\n")
	return NormalizeMarkdown(EnforceParagraphCap(merged, e.policy.ParagraphCap))
}

// trimEcho removes the part of cur that repeats prev, never more than the
// context the chunk was sent with.
func (e *Engine) trimEcho(prev string, c Chunk, cur string) string {
	ctx := []rune(strings.TrimSpace(c.Context))
	if len(ctx) == 0 || startsWithText(cur, c.Text, e.policy.OverlapWindow) {
		return cur
	}
	return e.trimOverlap(prev, cur, len(ctx))
}

// startsWithText reports whether out opens with the first window runes of
// text, meaning no context was echoed in front of it.
func startsWithText(out, text string, window int) bool {
	head := []rune(strings.TrimSpace(text))
	if len(head) == 0 {
		return false
	}
	if len(head) > window {
		head = head[:window]
	}
	o := []rune(out)
	return len(o) >= len(head) && slices.Equal(o[:len(head)], head)
}

// FindOverlap returns the length in runes of the longest suffix of prev that
// is also a prefix of cur, searching only the policy's overlap window. Matches
// shorter than MinOverlap are ignored.
func (e *Engine) FindOverlap(prev, cur string) int {
	return e.findOverlap(prev, cur, e.policy.OverlapWindow)
}

func (e *Engine) findOverlap(prev, cur string, limit int) int {
	p := []rune(prev)
	c := []rune(cur)
	w := min(e.policy.OverlapWindow, limit)
	if len(p) > w {
		p = p[len(p)-w:]
	}
	if len(c) > w {
		c = c[:w]
	}
	for n := min(len(p), len(c)); n >= e.policy.MinOverlap; n-- {
		if slices.Equal(p[len(p)-n:], c[:n]) {
			return n
		}
	}
	return 0
}

// TrimOverlap drops the text cur repeats from the end of prev. The whole
// overlap goes when it ends on a word boundary of cur; otherwise the cut moves
// back to the last paragraph, sentence or clause end inside the overlap.
func (e *Engine) TrimOverlap(prev, cur string) string {
	return e.trimOverlap(prev, cur, e.policy.OverlapWindow)
}

func (e *Engine) trimOverlap(prev, cur string, limit int) string {
	n := e.findOverlap(prev, cur, limit)
	if n == 0 {
		return cur
	}
	c := []rune(cur)
	cut := n
	if n < len(c) && !boundaryAt(c, n) {
		if safe := safeCut(c[:n], e.policy.SafeCutFloor); safe > e.policy.SafeCutFloor {
			cut = safe
		}
	}
	return strings.TrimSpace(string(c[cut:]))
}

func boundaryAt(r []rune, n int) bool {
	if n <= 0 || n >= len(r) {
		return true
	}
	last := r[n-1]
	return unicode.IsSpace(r[n]) || unicode.IsSpace(last) || isSentenceEnd(last) || isClauseEnd(last)
}

// safeCut picks a cut inside r: after the last blank line, else after the last
// sentence end beyond floor, else after the last clause mark beyond floor,
// else len(r).
func safeCut(r []rune, floor int) int {
	for i := len(r) - 2; i > 0; i-- {
		if r[i] == '\n' && r[i+1] == '\n' {
			return i + 2
		}
	}
	if end := lastPunctEnd(r, isSentenceEnd); end > floor {
		return end
	}
	if end := lastPunctEnd(r, isClauseEnd); end > floor {
		return end
	}
	return len(r)
}

// lastPunctEnd returns the index just past the last matching mark and the
// whitespace after it, or -1.
func lastPunctEnd(r []rune, match func(rune) bool) int {
	for i := len(r) - 1; i >= 0; i-- {
		if !match(r[i]) {
			continue
		}
		end := i + 1
		for end < len(r) && unicode.IsSpace(r[end]) {
			end++
		}
		return end
	}
	return -1
}
