package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "pipeline")).
		With(slog.String(FieldTaskID, "120000AA")).
		With(slog.String(FieldStage, "fetch"))

	logger.Info("fetch started", slog.String("url", "https://example.com/v"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.TaskID != "120000AA" || evt.Stage != "fetch" || evt.Component != "pipeline" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Fields["url"] != "https://example.com/v" {
		t.Fatalf("expected url field, got %v", evt.Fields)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	slog.New(handler).With(slog.String(FieldStage, "original")).Info("message", slog.String(FieldStage, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 || events[0].Stage != "overridden" {
		t.Fatalf("expected overridden stage, got %+v", events)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Fatal("expected base handler when hub is nil")
	}
}

func TestStreamHandlerEnabledDelegates(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, NewStreamHub(4))
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, last := hub.Tail(0)
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected buffer %+v", events)
	}
	if last != 3 {
		t.Fatalf("expected last sequence 3, got %d", last)
	}
}

func TestStreamHubFetchFiltersByTask(t *testing.T) {
	hub := NewStreamHub(10)
	hub.Publish(LogEvent{Message: "one", TaskID: "A"})
	hub.Publish(LogEvent{Message: "two", TaskID: "B"})
	hub.Publish(LogEvent{Message: "three", TaskID: "A"})

	events, _, err := hub.Fetch(context.Background(), 0, 10, "A", false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 || events[0].Message != "one" || events[1].Message != "three" {
		t.Fatalf("unexpected events %+v", events)
	}

	events, _, _ = hub.Fetch(context.Background(), 1, 10, "", false)
	if len(events) != 2 || events[0].Message != "two" {
		t.Fatalf("expected events after seq 1, got %+v", events)
	}
}

func TestStreamHubFetchWaitsForPublish(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()

	events, _, err := hub.Fetch(ctx, 0, 10, "", true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestStreamHubFetchHonorsCancel(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := hub.Fetch(ctx, 0, 10, "", true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
