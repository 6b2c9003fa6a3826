package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vidscribe/internal/api"
	"vidscribe/internal/artifacts"
	"vidscribe/internal/chunking"
	"vidscribe/internal/config"
	"vidscribe/internal/intake"
	"vidscribe/internal/logging"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/preflight"
	"vidscribe/internal/services/generation"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/services/whisperx"
	"vidscribe/internal/services/ytdlp"
	"vidscribe/internal/tasks"
	"vidscribe/internal/updates"
)

const shutdownTimeout = 10 * time.Second

// Option overrides a collaborator. Tests use these to avoid external tools.
type Option func(*options)

type options struct {
	fetcher     pipeline.Fetcher
	transcriber pipeline.Transcriber
	generator   llm.Generator
}

// WithFetcher replaces the yt-dlp fetcher.
func WithFetcher(f pipeline.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithTranscriber replaces the WhisperX transcriber.
func WithTranscriber(t pipeline.Transcriber) Option {
	return func(o *options) { o.transcriber = t }
}

// WithGenerator replaces the configured generation backend.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// Daemon owns the stores, the pipeline service and the API server and
// enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	hub       *logging.StreamHub
	store     *tasks.Store
	catalog   *artifacts.Catalog
	service   *pipeline.Service
	generator llm.Generator
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	started time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	preflight []preflight.Result
}

// New opens the stores and builds the pipeline. hub may be nil.
func New(cfg *config.Config, logger *slog.Logger, hub *logging.StreamHub, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := tasks.Open(cfg.TasksFile(), logger)
	if err != nil {
		return nil, fmt.Errorf("open task table: %w", err)
	}
	catalog, err := artifacts.OpenCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("open artifact catalog: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		hub:      hub,
		store:    store,
		catalog:  catalog,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	if err := d.buildService(o); err != nil {
		_ = catalog.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) buildService(o options) error {
	cfg := d.cfg
	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = ytdlp.NewService(ytdlp.Config{
			Binary:       cfg.YTDLPBinary(),
			FFmpegBinary: cfg.FFmpegBinary(),
			Format:       cfg.Fetch.Format,
			CookiesFile:  cfg.Fetch.CookiesFile,
			Timeout:      time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		})
	}
	transcriber := o.transcriber
	if transcriber == nil {
		transcriber = whisperx.NewService(whisperx.Config{
			Model:       cfg.Transcription.Model,
			CUDAEnabled: cfg.Transcription.CUDAEnabled,
			VADMethod:   cfg.Transcription.VADMethod,
			HFToken:     cfg.Transcription.HFToken,
		}, cfg.UVXBinary())
	}
	gen := o.generator
	if gen == nil {
		built, err := generation.New(cfg, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "generation backend unavailable", "generation_backend_unavailable",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the [generation] section of the config"),
				logging.String(logging.FieldImpact, "transcripts and summaries use deterministic fallbacks"),
			)
		} else {
			gen = built
		}
	}
	d.generator = gen

	prompts, err := pipeline.LoadPrompts(cfg.Generation.PromptsFile)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	bus := updates.New(
		updates.WithBuffer(cfg.Tasks.SubscriberBuffer),
		updates.WithHeartbeat(time.Duration(cfg.Tasks.HeartbeatSeconds)*time.Second),
		updates.WithLogger(d.logger),
	)
	artifactStore := artifacts.NewStore(cfg.Paths.WorkDir, d.catalog, d.logger)
	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorDeps{
		Store:       d.store,
		Bus:         bus,
		Artifacts:   artifactStore,
		Fetcher:     fetcher,
		Transcriber: transcriber,
		Generator:   gen,
		Engine:      chunking.New(cfg.Chunking, d.logger),
		Prompts:     prompts,
		Logger:      d.logger,
	})
	if err != nil {
		return err
	}
	d.service, err = pipeline.NewService(pipeline.ServiceDeps{
		Store:           d.store,
		Bus:             bus,
		Artifacts:       artifactStore,
		Orchestrator:    orchestrator,
		DefaultLanguage: cfg.Tasks.DefaultLanguage,
		Logger:          d.logger,
	})
	if err != nil {
		return err
	}
	d.api = newAPIServer(cfg, d, d.logger)
	return nil
}

// Start acquires the daemon lock, runs the local preflight checks, and starts
// the API server and the watch folder.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidscribe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.refreshPreflight()

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if dir := strings.TrimSpace(d.cfg.Paths.WatchDir); dir != "" {
		watcher, err := intake.New(dir, d.cfg.Tasks.DefaultLanguage, d.service, d.logger)
		if err != nil {
			logging.WarnWithContext(d.logger, "watch folder disabled", "intake_start_failed",
				logging.String("dir", dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that paths.watch_dir exists and is readable"),
			)
		} else {
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer watcher.Close()
				if err := watcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					d.logger.Error("watch folder stopped",
						logging.Error(err),
						logging.String(logging.FieldEventType, "intake_stopped"),
						logging.String(logging.FieldErrorHint, "restart the daemon to resume the watch folder"),
					)
				}
			}()
		}
	}

	d.cancel = cancel
	d.started = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("vidscribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops the API, cancels running jobs and releases the daemon lock. A
// stopped daemon cannot be started again.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	d.closeService()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
		)
	}
	d.running.Store(false)
	d.logger.Info("vidscribe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.closeService()
	if d.catalog != nil {
		return d.catalog.Close()
	}
	return nil
}

func (d *Daemon) closeService() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.service.Close(ctx); err != nil {
		d.logger.Warn("jobs did not stop in time",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_shutdown_timeout"),
			logging.String(logging.FieldErrorHint, "interrupted tasks are marked on next start"),
		)
	}
}

// Service exposes the pipeline service.
func (d *Daemon) Service() *pipeline.Service { return d.service }

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub { return d.hub }

// Addr returns the address the API listens on, once started.
func (d *Daemon) Addr() net.Addr {
	if d.api == nil || d.api.listener == nil {
		return nil
	}
	return d.api.listener.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	active := d.service.Active()
	d.mu.Lock()
	checks := append([]preflight.Result(nil), d.preflight...)
	d.mu.Unlock()
	var addr string
	if a := d.Addr(); a != nil {
		addr = a.String()
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.started,
		Address:      addr,
		ActiveTasks:  active.ActiveTasks,
		Claims:       len(active.ProcessingURLs),
		StoredTasks:  len(d.service.List()),
		LockFilePath: d.lockPath,
		Preflight:    checks,
	}
}

// Check runs every preflight check including a backend ping.
func (d *Daemon) Check(ctx context.Context) []preflight.Result {
	results := preflight.RunAll(ctx, d.cfg, d.generator)
	d.mu.Lock()
	d.preflight = results
	d.mu.Unlock()
	return results
}

func (d *Daemon) refreshPreflight() {
	results := preflight.RunLocal(d.cfg)
	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run 'vidscribe check' for details"),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail"),
		)
	}
	d.mu.Lock()
	d.preflight = results
	d.mu.Unlock()
}
