package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

// Store is the in-memory task table backed by a JSON file.
type Store struct {
	mu     sync.Mutex
	path   string
	tasks  map[string]*Task
	logger *slog.Logger
	now    func() time.Time
}

// Open loads the task table at path, creating an empty one when the file does
// not exist. Tasks left in processing by a previous run are marked as errors.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		tasks:  make(map[string]*Task),
		logger: logging.NewComponentLogger(logger, "task-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure task table dir: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read task table: %w", err)
	}
	if len(data) > 0 {
		loaded := make(map[string]*Task)
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("decode task table %s: %w", path, err)
		}
		for id, task := range loaded {
			if task == nil {
				continue
			}
			task.ID = id
			s.tasks[id] = task
		}
	}

	interrupted := 0
	for _, task := range s.tasks {
		if task.Status != StatusProcessing {
			continue
		}
		task.Status = StatusError
		task.Stage = StageError
		task.Error = InterruptedMessage
		task.Message = InterruptedMessage
		task.UpdatedAt = s.now()
		task.Version++
		interrupted++
	}
	if interrupted > 0 {
		s.logger.Info("marked interrupted tasks",
			logging.Int("count", interrupted),
			logging.String(logging.FieldEventType, "tasks_recovered"),
		)
		s.persistLocked()
	}
	return s, nil
}

// NewID returns an id not used by any stored task.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return GenerateID(s.now(), func(id string) bool {
		_, ok := s.tasks[id]
		return ok
	})
}

// Create inserts a new task. An empty ID is filled in.
func (s *Store) Create(task Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = GenerateID(s.now(), func(id string) bool {
			_, ok := s.tasks[id]
			return ok
		})
	}
	if _, exists := s.tasks[task.ID]; exists {
		return Task{}, services.Wrap(services.ErrValidation, "tasks", "create", "task id already exists: "+task.ID, nil)
	}
	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Version = 1
	if task.Status == "" {
		task.Status = StatusProcessing
	}
	if task.Stage == "" {
		task.Stage = StageAccepted
	}
	task.normalize()
	stored := task.Clone()
	s.tasks[task.ID] = &stored
	s.persistLocked()
	return task.Clone(), nil
}

// Get returns a copy of the task or an ErrNotFound error.
func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, services.Wrap(services.ErrNotFound, "tasks", "get", "task not found: "+id, nil)
	}
	return task.Clone(), nil
}

// Exists reports whether id is stored.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Update applies mutate to a copy of the task and stores the result. It
// returns false without calling mutate when the task is missing or terminal.
// Progress never decreases.
func (s *Store) Update(id string, mutate func(*Task)) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	if current.IsTerminal() {
		return current.Clone(), false
	}

	next := current.Clone()
	mutate(&next)
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = s.now()
	next.Version = current.Version + 1
	if next.Progress < current.Progress {
		next.Progress = current.Progress
	}
	if next.Status == "" {
		next.Status = current.Status
	}
	next.normalize()

	stored := next.Clone()
	s.tasks[id] = &stored
	s.persistLocked()
	return next, true
}

// Delete removes the task. It reports whether a task was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	s.persistLocked()
	return true
}

// List returns all tasks ordered by creation time.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// persistLocked rewrites the whole table. Failures are logged, never returned.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	if err := s.writeLocked(); err != nil {
		logging.WarnWithContext(s.logger, "task table not persisted", "task_store_persist_failed",
			logging.Error(err),
			logging.String("path", s.path),
			logging.String(logging.FieldImpact, "task state will not survive a restart"),
			logging.String(logging.FieldErrorHint, "check free space and permissions of data_dir"),
		)
	}
}

func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task table: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tasks-*.json")
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace task table: %w", err)
	}
	return nil
}
