package testsupport

import (
	"testing"

	"vidscribe/internal/artifacts"
	"vidscribe/internal/config"
	"vidscribe/internal/tasks"
)

// MustOpenStore opens the task store for cfg.
func MustOpenStore(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := tasks.Open(cfg.TasksFile(), nil)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	return store
}

// MustOpenArtifacts opens the artifact catalog for cfg and registers cleanup.
func MustOpenArtifacts(t testing.TB, cfg *config.Config) *artifacts.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	catalog, err := artifacts.OpenCatalog(cfg.CatalogPath())
	if err != nil {
		t.Fatalf("artifacts.OpenCatalog: %v", err)
	}
	t.Cleanup(func() {
		_ = catalog.Close()
	})
	return artifacts.NewStore(cfg.Paths.WorkDir, catalog, nil)
}
