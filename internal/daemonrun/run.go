package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vidscribe/internal/config"
	"vidscribe/internal/daemon"
	"vidscribe/internal/logging"
	"vidscribe/internal/preflight"
)

const (
	logPrefix   = "vidscribed-"
	keepRunLogs = 10
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "vidscribed.pid")
}

// Run starts the vidscribe daemon and blocks until ctx is done or the
// process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, logPrefix+runID+".log")
	logHub := logging.NewStreamHub(cfg.Logging.StreamCapacity)

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update vidscribed.log link: %v\n", err)
	}
	cleanupOldLogs(logger, cfg.Paths.LogDir, logPath)
	logDependencySnapshot(logger, cfg)

	d, err := daemon.New(cfg, logger, logHub)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("vidscribe daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "vidscribed.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// cleanupOldLogs keeps the newest run logs and removes the rest.
func cleanupOldLogs(logger *slog.Logger, dir, current string) {
	matches, err := filepath.Glob(filepath.Join(dir, logPrefix+"*.log"))
	if err != nil || len(matches) <= keepRunLogs {
		return
	}
	// run ids sort chronologically
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-keepRunLogs] {
		if path == current {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove old log failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "log_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check log directory permissions"),
			)
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []any{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("generation_backend", cfg.Generation.Backend),
		logging.String("generation_model", cfg.Generation.Model),
		logging.Bool("generation_key_present", strings.TrimSpace(cfg.Generation.APIKey) != ""),
		logging.String("whisperx_model", cfg.Transcription.Model),
		logging.Bool("whisperx_cuda", cfg.Transcription.CUDAEnabled),
		logging.String("whisperx_vad_method", cfg.Transcription.VADMethod),
		logging.Bool("watch_folder", strings.TrimSpace(cfg.Paths.WatchDir) != ""),
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(status.Name, "-", "_"))
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
	}
	logger.Info("dependency snapshot", attrs...)
}
