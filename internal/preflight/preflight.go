package preflight

import (
	"context"
	"fmt"

	"vidscribe/internal/config"
	"vidscribe/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Optional bool   `json:"optional,omitempty"`
}

// RunLocal executes the checks that need no network: directories, external
// tools and the prompt catalog.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Paths.WatchDir != "" {
		results = append(results, CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir))
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{
			Name:     status.Name,
			Passed:   status.Available,
			Detail:   detail,
			Optional: status.Optional,
		})
	}

	results = append(results, CheckPrompts(cfg.Generation.PromptsFile))
	return results
}

// RunAll executes the local checks followed by a ping of gen.
func RunAll(ctx context.Context, cfg *config.Config, gen llm.Generator) []Result {
	if cfg == nil {
		return nil
	}
	results := RunLocal(cfg)
	name := fmt.Sprintf("Generation (%s)", cfg.Generation.Backend)
	return append(results, CheckGeneration(ctx, name, gen))
}

// Failed returns the results that did not pass, ignoring optional checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}
