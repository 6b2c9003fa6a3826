package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"

	"vidscribe/internal/artifacts"
	"vidscribe/internal/language"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/tasks"
	"vidscribe/internal/updates"
)

// Submission messages.
const (
	MessageAccepted   = "Task created, processing started"
	MessageInProgress = "already in progress"
)

// Submission is the answer to a submit request.
type Submission struct {
	TaskID   string `json:"task_id"`
	Message  string `json:"message"`
	Existing bool   `json:"-"`
}

// Active summarizes the jobs currently running.
type Active struct {
	ActiveTasks    int      `json:"active_tasks"`
	ProcessingURLs []string `json:"processing_urls"`
	TaskIDs        []string `json:"task_ids"`
}

// Service accepts jobs and owns their goroutines.
type Service struct {
	store        *tasks.Store
	dedup        *tasks.DedupIndex
	registry     *tasks.Registry
	bus          *updates.Bus
	artifacts    *artifacts.Store
	orchestrator *Orchestrator
	defaultLang  string
	logger       *slog.Logger

	mu      sync.Mutex
	closed  bool
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// ServiceDeps bundles the service collaborators.
type ServiceDeps struct {
	Store           *tasks.Store
	Bus             *updates.Bus
	Artifacts       *artifacts.Store
	Orchestrator    *Orchestrator
	DefaultLanguage string
	Logger          *slog.Logger
}

// NewService wires a service. Jobs run until Close.
func NewService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("service: task store required")
	case deps.Bus == nil:
		return nil, errors.New("service: update bus required")
	case deps.Orchestrator == nil:
		return nil, errors.New("service: orchestrator required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	lang := language.Normalize(deps.DefaultLanguage)
	if lang == "" {
		lang = "zh-tw"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:        deps.Store,
		dedup:        tasks.NewDedupIndex(),
		registry:     tasks.NewRegistry(),
		bus:          deps.Bus,
		artifacts:    deps.Artifacts,
		orchestrator: deps.Orchestrator,
		defaultLang:  lang,
		logger:       logging.NewComponentLogger(deps.Logger, "pipeline"),
		baseCtx:      ctx,
		stop:         cancel,
	}
	deps.Orchestrator.finishing = s.finish
	return s, nil
}

// finish frees the claim of a task about to be stored as finished, so a client
// reacting to the terminal snapshot can resubmit the same URL right away.
func (s *Service) finish(taskID string) {
	s.dedup.ReleaseTask(taskID)
	s.registry.Remove(taskID)
}

// Submit starts a job for rawURL unless one is already running for it, in
// which case the running task id is returned with MessageInProgress.
func (s *Service) Submit(ctx context.Context, rawURL, summaryLanguage string) (Submission, error) {
	locator, err := validateURL(rawURL)
	if err != nil {
		return Submission{}, err
	}
	lang := language.Normalize(summaryLanguage)
	if lang == "" {
		lang = s.defaultLang
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Submission{}, services.Wrap(services.ErrValidation, "pipeline", "submit", "service is shutting down", nil)
	}

	id := s.store.NewID()
	if holder, inProgress := s.dedup.TryClaim(locator, id); inProgress {
		s.logger.Info("duplicate submission",
			logging.String(logging.FieldTaskID, holder),
			logging.String("url", locator),
			logging.String(logging.FieldEventType, "submission_deduplicated"),
		)
		return Submission{TaskID: holder, Message: MessageInProgress, Existing: true}, nil
	}

	task, err := s.store.Create(tasks.Task{
		ID:              id,
		Status:          tasks.StatusProcessing,
		Stage:           tasks.StageAccepted,
		Message:         "Task accepted",
		URL:             locator,
		SummaryLanguage: lang,
	})
	if err != nil {
		s.dedup.Release(locator, id)
		return Submission{}, err
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	s.registry.Register(id, cancel)
	s.bus.Publish(id, task)

	if requestID, ok := services.RequestIDFromContext(ctx); ok {
		runCtx = services.WithRequestID(runCtx, requestID)
	}
	s.wg.Add(1)
	go s.run(runCtx, id, locator)

	s.logger.Info("task accepted",
		logging.String(logging.FieldTaskID, id),
		logging.String("url", locator),
		logging.String("summary_language", lang),
		logging.String(logging.FieldEventType, "task_accepted"),
	)
	return Submission{TaskID: id, Message: MessageAccepted}, nil
}

func (s *Service) run(ctx context.Context, id, locator string) {
	defer s.wg.Done()
	// Covers runs that stop without a terminal snapshot. Release is keyed on
	// id, so a newer claim for the same URL is left alone.
	defer func() {
		s.dedup.Release(locator, id)
		s.registry.Remove(id)
	}()
	err := s.orchestrator.Run(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, errTaskGone), services.IsCanceled(err), ctx.Err() != nil:
		logging.TaskLogger(s.logger, id).Info("task stopped", logging.Error(err))
	default:
		s.orchestrator.Fail(id, err)
	}
}

// Get returns the stored task.
func (s *Service) Get(id string) (tasks.Task, error) {
	return s.store.Get(id)
}

// List returns every stored task ordered by creation.
func (s *Service) List() []tasks.Task {
	return s.store.List()
}

// Subscribe opens a live subscription for id together with the current
// snapshot. The subscription only yields snapshots newer than that one.
func (s *Service) Subscribe(id string) (*updates.Subscription, tasks.Task, error) {
	sub := s.bus.Subscribe(id)
	task, err := s.store.Get(id)
	if err != nil {
		sub.Close()
		return nil, tasks.Task{}, err
	}
	sub.SkipThrough(task.Version)
	return sub, task, nil
}

// Cancel stops the job, releases its claim and deletes its record. It is
// idempotent for tasks that already finished.
func (s *Service) Cancel(id string) error {
	task, err := s.store.Get(id)
	if err != nil {
		return err
	}
	signalled := s.registry.Cancel(id)
	s.registry.Remove(id)
	s.dedup.Release(task.URL, id)
	s.store.Delete(id)
	s.bus.Drop(id)
	s.logger.Info("task cancelled",
		logging.String(logging.FieldTaskID, id),
		logging.Bool("was_running", signalled),
		logging.String(logging.FieldEventType, "task_cancelled"),
	)
	return nil
}

// Active lists the running jobs.
func (s *Service) Active() Active {
	claims := s.dedup.Claims()
	active := Active{ProcessingURLs: []string{}, TaskIDs: s.registry.IDs()}
	for locator := range claims {
		active.ProcessingURLs = append(active.ProcessingURLs, locator)
	}
	sort.Strings(active.ProcessingURLs)
	if active.TaskIDs == nil {
		active.TaskIDs = []string{}
	}
	sort.Strings(active.TaskIDs)
	active.ActiveTasks = len(active.TaskIDs)
	return active
}

// Artifacts exposes the artifact store for downloads.
func (s *Service) Artifacts() *artifacts.Store { return s.artifacts }

// Close cancels every running job and waits for them to return or for ctx
// to end.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.registry.CancelAll()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", services.Wrap(services.ErrValidation, "pipeline", "submit", "url is required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", services.Wrap(services.ErrValidation, "pipeline", "submit", "url must be an http(s) link", nil)
	}
	return raw, nil
}
