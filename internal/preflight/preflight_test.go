package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidscribe/internal/services/llm"
	"vidscribe/internal/testsupport"
)

type pingGenerator struct {
	err error
}

func (p pingGenerator) Generate(context.Context, llm.Request) (string, error) { return "ok", nil }

func (p pingGenerator) Ping(context.Context) error { return p.err }

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGeneration(t *testing.T) {
	if r := CheckGeneration(context.Background(), "gen", nil); r.Passed {
		t.Fatal("expected failure without backend")
	}
	if r := CheckGeneration(context.Background(), "gen", pingGenerator{}); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	r := CheckGeneration(context.Background(), "gen", pingGenerator{err: errors.New("401 unauthorized")})
	if r.Passed || !strings.Contains(r.Detail, "401") {
		t.Fatalf("expected failure with detail, got %+v", r)
	}
	r = CheckGeneration(context.Background(), "gen", pingGenerator{err: context.DeadlineExceeded})
	if r.Passed || !strings.Contains(r.Detail, "timed out") {
		t.Fatalf("expected timeout summary, got %+v", r)
	}
	plain := llm.GeneratorFunc(func(context.Context, llm.Request) (string, error) { return "", nil })
	if r := CheckGeneration(context.Background(), "gen", plain); !r.Passed {
		t.Fatal("generators without ping should pass")
	}
}

func TestCheckPrompts(t *testing.T) {
	if r := CheckPrompts(""); !r.Passed {
		t.Fatal("built-in prompts should pass")
	}
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	testsupport.WriteFile(t, path, "bogus:\n  system: x\n")
	if r := CheckPrompts(path); r.Passed {
		t.Fatal("unknown prompt key should fail")
	}
}

func TestRunLocal_StubbedBinaries(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries(), testsupport.WithWatchDir())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunLocal(cfg)
	// data, work, log, watch, yt-dlp, ffmpeg, uvx, prompts
	if len(results) != 8 {
		t.Fatalf("expected 8 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunLocal_MissingBinary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	t.Setenv("PATH", t.TempDir())

	failed := Failed(RunLocal(cfg))
	names := make([]string, 0, len(failed))
	for _, r := range failed {
		names = append(names, r.Name)
	}
	if strings.Join(names, ",") != "yt-dlp,FFmpeg,uvx" {
		t.Fatalf("unexpected failures %v", names)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_IncludesGeneration(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(context.Background(), cfg, pingGenerator{})
	last := results[len(results)-1]
	if last.Name != "Generation (openai)" || !last.Passed {
		t.Fatalf("unexpected generation result %+v", last)
	}
}
