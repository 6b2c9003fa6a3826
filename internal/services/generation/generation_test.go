package generation

import (
	"testing"

	"vidscribe/internal/config"
	"vidscribe/internal/services/gemini"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/ollama"
)

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()

	cfg.Generation.Backend = config.BackendOpenAI
	cfg.Generation.Model = "gpt-test"
	gen, err := New(&cfg, nil)
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := gen.(*llm.Client); !ok {
		t.Fatalf("expected *llm.Client, got %T", gen)
	}

	cfg.Generation.Backend = config.BackendGemini
	cfg.Generation.APIKey = "a,b"
	cfg.Generation.Model = "gemini-test"
	gen, err = New(&cfg, nil)
	if err != nil {
		t.Fatalf("gemini: %v", err)
	}
	if _, ok := gen.(*gemini.Client); !ok {
		t.Fatalf("expected *gemini.Client, got %T", gen)
	}

	cfg.Generation.Backend = config.BackendOllama
	cfg.Generation.BaseURL = "http://127.0.0.1:11434"
	cfg.Generation.Model = "llama-test"
	gen, err = New(&cfg, nil)
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if _, ok := gen.(*ollama.Client); !ok {
		t.Fatalf("expected *ollama.Client, got %T", gen)
	}
}

func TestNewWrapsRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Backend = config.BackendOpenAI
	cfg.Generation.RequestsPerMinute = 30
	gen, err := New(&cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := gen.(*llm.Client); ok {
		t.Fatal("expected rate limited wrapper")
	}
	if _, ok := gen.(llm.Pinger); !ok {
		t.Fatal("wrapper should still expose Ping")
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Backend = config.BackendGemini
	cfg.Generation.APIKey = ""
	cfg.Generation.Model = "gemini-test"
	if _, err := New(&cfg, nil); err == nil {
		t.Fatal("expected error without key")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Generation.Backend = "mystery"
	if _, err := New(&cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
