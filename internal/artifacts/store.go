package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

// Store writes task documents and resolves download names.
type Store struct {
	workDir string
	catalog *Catalog
	logger  *slog.Logger
}

// NewStore binds a work dir to a catalog. catalog may be nil, in which case
// lookups only scan the file system.
func NewStore(workDir string, catalog *Catalog, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{workDir: workDir, catalog: catalog, logger: logger}
}

// WorkDir returns the root under which task directories live.
func (s *Store) WorkDir() string { return s.workDir }

// CreateTaskDir creates the directory for a task.
func (s *Store) CreateTaskDir(taskID string, created time.Time) (string, error) {
	return CreateTaskDir(s.workDir, taskID, created)
}

// Save writes one document into dir and records it in the catalog. Nothing is
// written once ctx is done. Catalog failures are logged; the file on disk is
// authoritative.
func (s *Store) Save(ctx context.Context, taskID, dir string, kind Kind, title, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrCanceled, "artifacts", "save", string(kind), err)
	}
	name := FileName(kind, title, taskID)
	path, err := WriteFile(dir, name, content)
	if err != nil {
		return "", err
	}
	if s.catalog != nil {
		entry := Entry{Name: name, TaskID: taskID, Kind: kind, Path: path, SizeBytes: int64(len(content))}
		// The file exists now, so the catalog row must follow even if the run
		// is cancelled in between.
		if err := s.catalog.Record(context.WithoutCancel(ctx), entry); err != nil {
			logging.WarnWithContext(s.logger, "artifact catalog write failed", "artifact_catalog_failed",
				logging.String(logging.FieldTaskID, taskID),
				logging.String("artifact", name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "download falls back to directory scan"),
			)
		}
	}
	return name, nil
}

// Resolve returns the path of a downloadable artifact: catalog first, then
// task directories, then the work dir root.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if s.catalog != nil {
		entry, err := s.catalog.Resolve(ctx, name)
		switch {
		case err == nil:
			if fileExists(entry.Path) {
				return entry.Path, nil
			}
		case !errors.Is(err, services.ErrNotFound):
			s.logger.Debug("artifact catalog lookup failed", logging.String("artifact", name), logging.Error(err))
		}
	}
	matches, err := filepath.Glob(filepath.Join(s.workDir, "*", name))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		for i := len(matches) - 1; i >= 0; i-- {
			if fileExists(matches[i]) {
				return matches[i], nil
			}
		}
	}
	if root := filepath.Join(s.workDir, name); fileExists(root) {
		return root, nil
	}
	return "", services.Wrap(services.ErrNotFound, "artifacts", "resolve", fmt.Sprintf("file %s not found", name), nil)
}

// List returns the cataloged artifacts for a task.
func (s *Store) List(ctx context.Context, taskID string) ([]Entry, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.ListByTask(ctx, taskID)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
