package chunking

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"vidscribe/internal/config"
	"vidscribe/internal/logging"
)

// Engine applies one chunking policy.
type Engine struct {
	policy config.Chunking
	logger *slog.Logger
}

// New returns an engine for policy. Zero fields take the defaults.
func New(policy config.Chunking, logger *slog.Logger) *Engine {
	defaults := config.Default().Chunking
	if policy.ChunkChars <= 0 {
		policy.ChunkChars = defaults.ChunkChars
	}
	if policy.ContextChars < 0 {
		policy.ContextChars = 0
	}
	if policy.OverlapWindow <= 0 {
		policy.OverlapWindow = defaults.OverlapWindow
	}
	if policy.MinOverlap <= 0 {
		policy.MinOverlap = defaults.MinOverlap
	}
	if policy.SafeCutFloor <= 0 {
		policy.SafeCutFloor = defaults.SafeCutFloor
	}
	if policy.ParagraphCap <= 0 {
		policy.ParagraphCap = defaults.ParagraphCap
	}
	if policy.SentenceFloor <= 0 || policy.SentenceFloor >= 1 {
		policy.SentenceFloor = defaults.SentenceFloor
	}
	if policy.WhitespaceFloor <= 0 || policy.WhitespaceFloor >= 1 {
		policy.WhitespaceFloor = defaults.WhitespaceFloor
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = 1
	}
	return &Engine{policy: policy, logger: logging.NewComponentLogger(logger, "chunking")}
}

// Policy returns the effective policy.
func (e *Engine) Policy() config.Chunking { return e.policy }

// Fits reports whether text needs no splitting.
func (e *Engine) Fits(text string) bool {
	return runeLen(text) <= e.policy.ChunkChars
}

// Split partitions text into chunks of at most limit runes. A non-positive
// limit uses the policy's ChunkChars.
func (e *Engine) Split(text string, limit int) []string {
	if limit <= 0 {
		limit = e.policy.ChunkChars
	}
	var grouped []string
	cur := ""
	for _, para := range Paragraphs(text) {
		switch {
		case cur == "":
			cur = para
		case runeLen(cur)+2+runeLen(para) > limit:
			grouped = append(grouped, cur)
			cur = para
		default:
			cur += "\n\n" + para
		}
	}
	if cur != "" {
		grouped = append(grouped, cur)
	}

	var chunks []string
	for _, chunk := range grouped {
		if runeLen(chunk) <= limit {
			chunks = append(chunks, chunk)
			continue
		}
		chunks = append(chunks, e.splitLong([]rune(chunk), limit)...)
	}
	return chunks
}

// splitLong cuts at the last sentence end past SentenceFloor of the limit,
// else at the last whitespace past WhitespaceFloor, else at the limit.
func (e *Engine) splitLong(r []rune, limit int) []string {
	sentenceMin := int(float64(limit) * e.policy.SentenceFloor)
	spaceMin := int(float64(limit) * e.policy.WhitespaceFloor)

	var out []string
	pos := 0
	for pos < len(r) {
		end := min(pos+limit, len(r))
		if end < len(r) {
			best, space := -1, -1
			for i := end - 1; i >= pos; i-- {
				if best < 0 && isSentenceEnd(r[i]) {
					best = i
				}
				if space < 0 && unicode.IsSpace(r[i]) {
					space = i
				}
				if best >= 0 && space >= 0 {
					break
				}
			}
			switch {
			case best > pos+sentenceMin:
				end = best + 1
			case space > pos+spaceMin:
				end = space
			}
		}
		if piece := strings.TrimSpace(string(r[pos:end])); piece != "" {
			out = append(out, piece)
		}
		pos = end
	}
	return out
}

// Chunk is one prepared piece of work.
type Chunk struct {
	Index int
	Total int
	// Text is the chunk body without context.
	Text string
	// Context is the tail of the previous chunk, empty for the first chunk.
	Context string
	// Marker is the context marker placed before Text in Input.
	Marker string
	// Input is what the generator should receive.
	Input string
}

// Prepare attaches context markers. lang selects the marker wording.
func (e *Engine) Prepare(chunks []string, lang string) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, text := range chunks {
		c := Chunk{Index: i, Total: len(chunks), Text: text, Input: text}
		if i > 0 && e.policy.ContextChars > 0 {
			prev := []rune(chunks[i-1])
			c.Context = string(prev[max(len(prev)-e.policy.ContextChars, 0):])
			c.Marker = ContextMarker(c.Context, lang)
			c.Input = c.Marker + "\n\n" + text
		}
		out[i] = c
	}
	return out
}

// ProcessFunc transforms one chunk.
type ProcessFunc func(ctx context.Context, c Chunk) (string, error)

// ProgressFunc observes completed chunks.
type ProgressFunc func(done, total int)

// Process runs fn over chunks and returns outputs in chunk order. A failed or
// empty answer is replaced by FallbackFormat of the chunk text. The only
// error returned is the context's.
func (e *Engine) Process(ctx context.Context, chunks []Chunk, fn ProcessFunc, progress ProgressFunc) ([]string, error) {
	results := make([]string, len(chunks))
	if len(chunks) == 0 {
		return results, nil
	}

	var (
		mu   sync.Mutex
		done int
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, e.policy.Concurrency)

	run := func(c Chunk) {
		out, err := fn(ctx, c)
		if err == nil {
			out = StripMarker(out, c.Marker)
		}
		if err != nil || strings.TrimSpace(out) == "" {
			if ctx.Err() == nil {
				logging.WarnWithContext(e.logger, "chunk generation failed; using fallback formatter", "chunk_fallback",
					logging.Int("chunk", c.Index+1),
					logging.Int("chunks", c.Total),
					logging.Error(err),
					logging.String(logging.FieldImpact, "chunk keeps its original wording"),
				)
			}
			out = FallbackFormat(c.Text, e.policy.ParagraphCap)
		}
		results[c.Index] = out

		mu.Lock()
		done++
		current := done
		if progress != nil {
			progress(current, len(chunks))
		}
		mu.Unlock()
	}

	for _, c := range chunks {
		sem <- struct{}{}
		if ctx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(c Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			run(c)
		}(c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Run is Split, Prepare, Process and Stitch in sequence.
func (e *Engine) Run(ctx context.Context, text, lang string, fn ProcessFunc, progress ProgressFunc) (string, error) {
	chunks := e.Prepare(e.Split(text, 0), lang)
	e.logger.Debug("processing chunks", logging.Int("chunks", len(chunks)))
	outputs, err := e.Process(ctx, chunks, fn, progress)
	if err != nil {
		return "", err
	}
	return e.Stitch(chunks, outputs), nil
}
