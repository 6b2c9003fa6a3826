package daemonctl

import (
	"context"
	"fmt"
	"time"

	"vidscribe/internal/api"
	"vidscribe/internal/config"
	"vidscribe/internal/deps"
	"vidscribe/internal/preflight"
)

// Snapshot is the combined view rendered by "vidscribe status".
type Snapshot struct {
	Running      bool                `json:"running"`
	Health       *api.HealthResponse `json:"health,omitempty"`
	Checks       []preflight.Result  `json:"checks"`
	Dependencies []deps.Status       `json:"dependencies"`
	Summary      DependencySummary   `json:"summary"`
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// BuildStatusSnapshot asks the daemon for its status and falls back to local
// checks when it is unreachable.
func BuildStatusSnapshot(ctx context.Context, client *api.Client, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, fmt.Errorf("configuration not available")
	}
	var snap Snapshot

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if health, err := client.Health(queryCtx); err == nil {
		snap.Running = health.Daemon.Running
		snap.Health = &health
		snap.Checks = health.Daemon.Preflight
	}
	if len(snap.Checks) == 0 {
		snap.Checks = preflight.RunLocal(cfg)
	}
	snap.Dependencies = preflight.CheckSystemDeps(cfg)
	snap.Summary = BuildDependencySummary(snap.Dependencies)
	return snap, nil
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []deps.Status) DependencySummary {
	if len(statuses) == 0 {
		return DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
