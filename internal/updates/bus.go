// Package updates fans task snapshots out to live subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full is dropped and
// its channel closed, and it is expected to resubscribe and re-read the stored
// task. Subscribers that see no snapshot for the idle window receive a
// heartbeat event instead.
package updates

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/tasks"
)

const (
	defaultBuffer    = 16
	defaultHeartbeat = 30 * time.Second
)

// ErrDropped is returned by Subscription.Next once the bus removed the subscriber.
var ErrDropped = errors.New("subscription dropped")

// EventType distinguishes task snapshots from keep-alive heartbeats.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventHeartbeat EventType = "heartbeat"
)

// Event is what a subscriber receives. Task is nil for heartbeats.
type Event struct {
	Type EventType
	Task *tasks.Task
}

// Option customizes a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithHeartbeat sets the idle window after which a heartbeat is produced.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithLogger attaches a logger for drop diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logging.NewComponentLogger(logger, "update-bus")
	}
}

// Bus keeps the subscriber set of every task.
type Bus struct {
	mu        sync.Mutex
	subs      map[string]map[uint64]*Subscription
	nextID    uint64
	buffer    int
	heartbeat time.Duration
	logger    *slog.Logger
}

// New constructs an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string]map[uint64]*Subscription),
		buffer:    defaultBuffer,
		heartbeat: defaultHeartbeat,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one subscriber's delivery channel for one task.
type Subscription struct {
	id        uint64
	taskID    string
	ch        chan tasks.Task
	bus       *Bus
	heartbeat time.Duration

	// seen is the highest task version handed to the reader. Only the
	// reading goroutine touches it.
	seen uint64
}

// TaskID returns the task this subscription follows.
func (s *Subscription) TaskID() string { return s.taskID }

// C exposes the raw snapshot channel. It is closed when the subscriber is
// dropped or unsubscribed.
func (s *Subscription) C() <-chan tasks.Task { return s.ch }

// SkipThrough marks every snapshot up to version as already delivered. Call it
// with the version of a snapshot read outside the subscription.
func (s *Subscription) SkipThrough(version uint64) {
	if version > s.seen {
		s.seen = version
	}
}

// Next blocks until a snapshot arrives, the idle window passes, or ctx ends.
// Snapshots that are not newer than the last one delivered are skipped.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	timer := time.NewTimer(s.heartbeat)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case task, ok := <-s.ch:
			if !ok {
				return Event{}, ErrDropped
			}
			if task.Version != 0 && task.Version <= s.seen {
				continue
			}
			s.SkipThrough(task.Version)
			return Event{Type: EventSnapshot, Task: &task}, nil
		case <-timer.C:
			return Event{Type: EventHeartbeat}, nil
		}
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s)
}

// Subscribe registers a new channel for taskID.
func (b *Bus) Subscribe(taskID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		taskID:    taskID,
		ch:        make(chan tasks.Task, b.buffer),
		bus:       b,
		heartbeat: b.heartbeat,
	}
	set, ok := b.subs[taskID]
	if !ok {
		set = make(map[uint64]*Subscription)
		b.subs[taskID] = set
	}
	set[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sub)
}

func (b *Bus) removeLocked(sub *Subscription) {
	set, ok := b.subs[sub.taskID]
	if !ok {
		return
	}
	if _, ok := set[sub.id]; !ok {
		return
	}
	delete(set, sub.id)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.taskID)
	}
}

// Publish delivers snapshot to every subscriber of taskID without blocking.
// Subscribers with a full buffer are dropped. It returns the number of
// subscribers that received the snapshot.
func (b *Bus) Publish(taskID string, snapshot tasks.Task) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[taskID]
	if len(set) == 0 {
		return 0
	}
	targets := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	delivered := 0
	for _, sub := range targets {
		select {
		case sub.ch <- snapshot.Clone():
			delivered++
		default:
			b.removeLocked(sub)
			b.logger.Debug("dropped slow subscriber",
				logging.String(logging.FieldTaskID, taskID),
				logging.String(logging.FieldEventType, "subscriber_dropped"),
			)
		}
	}
	return delivered
}

// Count reports the number of subscribers for taskID.
func (b *Bus) Count(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[taskID])
}

// Tasks reports how many tasks currently have subscribers.
func (b *Bus) Tasks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Drop closes every subscription of taskID. Readers see ErrDropped.
func (b *Bus) Drop(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[taskID]
	n := len(set)
	for _, sub := range set {
		b.removeLocked(sub)
	}
	return n
}
