package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/whisperx"
	"vidscribe/internal/services/ytdlp"
)

// FakeFetcher writes a placeholder audio file and returns Title. When Gate is
// set, Fetch blocks until Gate is closed or ctx ends.
type FakeFetcher struct {
	Title string
	Err   error
	Gate  chan struct{}

	mu    sync.Mutex
	calls []string
}

// Fetch implements the pipeline fetcher.
func (f *FakeFetcher) Fetch(ctx context.Context, url, dir string) (ytdlp.Media, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ytdlp.Media{}, ctx.Err()
		}
	}
	if f.Err != nil {
		return ytdlp.Media{}, f.Err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ytdlp.Media{}, err
	}
	path := filepath.Join(dir, "audio_test.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		return ytdlp.Media{}, err
	}
	title := f.Title
	if title == "" {
		title = "Test Video"
	}
	return ytdlp.Media{AudioPath: path, Title: title}, nil
}

// Calls returns the URLs fetched so far.
func (f *FakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// FakeTranscriber returns fixed segments in Language.
type FakeTranscriber struct {
	Language string
	Segments []whisperx.Segment
	Err      error
}

// Transcribe implements the pipeline transcriber.
func (f *FakeTranscriber) Transcribe(ctx context.Context, audioPath, outputDir, lang string) (whisperx.Result, error) {
	if err := ctx.Err(); err != nil {
		return whisperx.Result{}, err
	}
	if f.Err != nil {
		return whisperx.Result{}, f.Err
	}
	segments := f.Segments
	if len(segments) == 0 {
		segments = []whisperx.Segment{
			{Text: "Hello and welcome to the show.", Start: 0, End: 2},
			{Text: "Today we talk about testing pipelines.", Start: 2, End: 5},
		}
	}
	return whisperx.Result{
		Language: f.Language,
		Segments: segments,
		Markdown: whisperx.FormatMarkdown(f.Language, segments),
	}, nil
}

// FakeGenerator answers generation requests with Respond, or echoes a tagged
// prompt when Respond is nil. Every request is recorded.
type FakeGenerator struct {
	Respond func(req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

// Generate implements llm.Generator.
func (g *FakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.Respond != nil {
		return g.Respond(req)
	}
	return "generated: " + firstLine(req.Prompt), nil
}

// Requests returns a copy of the recorded requests.
func (g *FakeGenerator) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Request(nil), g.requests...)
}

// CountContaining reports how many recorded prompts or system prompts contain s.
func (g *FakeGenerator) CountContaining(s string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, req := range g.requests {
		if strings.Contains(req.Prompt, s) || strings.Contains(req.System, s) {
			n++
		}
	}
	return n
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
