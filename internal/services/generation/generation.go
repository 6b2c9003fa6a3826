// Package generation builds the configured text generation backend.
package generation

import (
	"fmt"
	"log/slog"

	"vidscribe/internal/config"
	"vidscribe/internal/services/gemini"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/ollama"
)

// New returns the generator selected by cfg.Generation.Backend, rate limited
// to cfg.Generation.RequestsPerMinute.
func New(cfg *config.Config, logger *slog.Logger) (llm.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("generation: config required")
	}
	gen := cfg.Generation
	var (
		backend llm.Generator
		err     error
	)
	switch gen.Backend {
	case config.BackendOpenAI:
		backend = llm.NewClient(llm.Config{
			APIKey:         gen.APIKey,
			BaseURL:        gen.BaseURL,
			Model:          gen.Model,
			TimeoutSeconds: gen.TimeoutSeconds,
		}, llm.WithRetryMaxAttempts(gen.RetryAttempts))
	case config.BackendGemini:
		backend, err = gemini.New(gemini.Config{
			APIKeys:        gemini.SplitKeys(gen.APIKey),
			BaseURL:        gen.BaseURL,
			Model:          gen.Model,
			TimeoutSeconds: gen.TimeoutSeconds,
		}, nil)
	case config.BackendOllama:
		backend, err = ollama.New(ollama.Config{
			BaseURL:        gen.BaseURL,
			Model:          gen.Model,
			TimeoutSeconds: gen.TimeoutSeconds,
		}, nil)
	default:
		return nil, fmt.Errorf("generation: unsupported backend %q", gen.Backend)
	}
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("generation backend ready",
			slog.String("backend", gen.Backend),
			slog.String("model", gen.Model),
			slog.Int("requests_per_minute", gen.RequestsPerMinute),
		)
	}
	return llm.RateLimited(backend, gen.RequestsPerMinute), nil
}
