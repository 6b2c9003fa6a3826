package testsupport

import (
	"log/slog"
	"path/filepath"
	"testing"

	"vidscribe/internal/logging"
)

// NewLogger returns a debug JSON logger writing under t.TempDir() and
// mirroring every record to hub.
func NewLogger(t testing.TB, hub *logging.StreamHub) *slog.Logger {
	t.Helper()
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{filepath.Join(t.TempDir(), "test.log")},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return logger
}
