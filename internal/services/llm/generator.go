package llm

import (
	"context"
	"strings"
)

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Validate reports missing prompt text.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errPromptRequired
	}
	return nil
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Pinger is implemented by generators that can verify their backend cheaply.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
