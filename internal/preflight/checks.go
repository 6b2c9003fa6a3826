package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vidscribe/internal/config"
	"vidscribe/internal/deps"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/services/llm"
)

// CheckGeneration pings gen when it supports it. It uses a 30-second timeout.
func CheckGeneration(ctx context.Context, name string, gen llm.Generator) Result {
	if gen == nil {
		return Result{Name: name, Detail: "backend not configured"}
	}
	pinger, ok := gen.(llm.Pinger)
	if !ok {
		return Result{Name: name, Passed: true, Detail: "backend does not support health checks"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := pinger.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeGenerationError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPrompts verifies that the prompt override file parses and renders.
func CheckPrompts(path string) Result {
	const name = "Prompt catalog"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "built-in prompts"}
	}
	if _, err := pipeline.LoadPrompts(path); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSystemDeps evaluates the external tools required by cfg. Both the
// daemon and the CLI check command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.YTDLPBinary(),
			Description: "Required for media download",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audio extraction",
		},
		{
			Name:        "uvx",
			Command:     cfg.UVXBinary(),
			Description: "Required for WhisperX-driven transcription",
		},
	}
	if cfg.Transcription.CUDAEnabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "nvidia-smi",
			Command:     "nvidia-smi",
			Description: "Confirms a CUDA device for WhisperX",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(requirements)
}

// summarizeGenerationError produces a human-readable summary for backend health check failures.
func summarizeGenerationError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (generation API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (generation API unreachable)"
	}
	return err.Error()
}
