package intake

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"vidscribe/internal/logging"
	"vidscribe/internal/pipeline"
)

// SubmittedSuffix is appended to processed link files.
const SubmittedSuffix = ".submitted"

const defaultSettle = 500 * time.Millisecond

// Submitter accepts one locator.
type Submitter interface {
	Submit(ctx context.Context, rawURL, summaryLanguage string) (pipeline.Submission, error)
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithSettle sets how long a file must stay unchanged before it is read.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// Watcher submits links dropped into a directory.
type Watcher struct {
	dir       string
	language  string
	submitter Submitter
	logger    *slog.Logger
	watcher   *fsnotify.Watcher
	settle    time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// New starts watching dir. Links are submitted with summaryLanguage.
func New(dir, summaryLanguage string, submitter Submitter, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if submitter == nil {
		return nil, fmt.Errorf("intake: submitter required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	w := &Watcher{
		dir:       dir,
		language:  summaryLanguage,
		submitter: submitter,
		logger:    logging.NewComponentLogger(logger, "intake"),
		watcher:   fsw,
		settle:    defaultSettle,
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes files already in the directory, then new ones as they
// settle, until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watch folder active", logging.String("dir", w.dir))
	w.scanExisting(ctx)

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !isLinkFile(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logging.WarnWithContext(w.logger, "watch folder error", "intake_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the watch directory"),
			)

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.processLogged(ctx, path)
			}
		}
	}
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, seen := range w.pending {
		if now.Sub(seen) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("watch folder scan failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "intake_scan_failed"),
			logging.String(logging.FieldErrorHint, "check that the watch directory exists"),
		)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isLinkFile(entry.Name()) {
			continue
		}
		w.processLogged(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) processLogged(ctx context.Context, path string) {
	n, err := w.ProcessFile(ctx, path)
	if err != nil {
		logging.WarnWithContext(w.logger, "link file not processed", "intake_file_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the file and drop it again"),
		)
		return
	}
	w.logger.Info("link file submitted",
		logging.String("path", path),
		logging.Int("links", n),
		logging.String(logging.FieldEventType, "intake_file_submitted"),
	)
}

// ProcessFile submits every link in path and renames it with
// SubmittedSuffix. It returns the number of links accepted. Rejected links
// are logged and skipped.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (int, error) {
	links, err := readLinks(path)
	if err != nil {
		return 0, err
	}
	accepted := 0
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}
		sub, err := w.submitter.Submit(ctx, link, w.language)
		if err != nil {
			w.logger.Warn("link rejected",
				logging.String("url", link),
				logging.Error(err),
				logging.String(logging.FieldEventType, "intake_link_rejected"),
				logging.String(logging.FieldErrorHint, "only http(s) links are accepted"),
			)
			continue
		}
		accepted++
		w.logger.Debug("link submitted",
			logging.String("url", link),
			logging.String(logging.FieldTaskID, sub.TaskID),
			logging.Bool("existing", sub.Existing),
		)
	}
	if err := os.Rename(path, path+SubmittedSuffix); err != nil {
		return accepted, fmt.Errorf("mark link file submitted: %w", err)
	}
	return accepted, nil
}

func readLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open link file: %w", err)
	}
	defer f.Close()

	var links []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Windows internet shortcuts carry the link as URL=...
		if value, ok := strings.CutPrefix(line, "URL="); ok {
			line = strings.TrimSpace(value)
		} else if strings.HasPrefix(line, "[") {
			continue
		}
		links = append(links, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read link file: %w", err)
	}
	return links, nil
}

func isLinkFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".url", ".txt":
		return true
	}
	return false
}
