package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/tasks"
	"vidscribe/internal/testsupport"
)

const testVideoURL = "https://www.youtube.com/watch?v=abc123"

func TestSubmitWaitAndInspect(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env, "submit", testVideoURL, "--lang", "en", "--wait")
	if err != nil {
		t.Fatalf("submit --wait: %v\n%s", err, out)
	}
	id := taskIDFromSubmit(t, out)
	requireContains(t, out, "[100%] completed")
	requireContains(t, out, ".md")

	out, _, err = runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "CLI Video")

	out, _, err = runCLI(t, env, "show", id)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Task:")
	requireContains(t, out, string(tasks.StatusCompleted))

	out, _, err = runCLI(t, env, "artifacts", id)
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	requireContains(t, out, "summary")
	requireContains(t, out, "transcript")

	out, _, err = runCLI(t, env, "logs", "--task", id)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, id)
}

func TestFetchWritesArtifact(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env, "submit", testVideoURL, "--lang", "en", "--wait")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	task, err := env.daemon.Service().Get(taskIDFromSubmit(t, out))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	name := task.Result.Files.Summary

	dest := t.TempDir()
	out, _, err = runCLI(t, env, "fetch", name, "-o", dest)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	requireContains(t, out, "Saved")
	data, err := os.ReadFile(filepath.Join(dest, name))
	if err != nil {
		t.Fatalf("read fetched file: %v", err)
	}
	requireContains(t, string(data), "cli summary text")

	out, _, err = runCLI(t, env, "fetch", name, "-o", "-")
	if err != nil {
		t.Fatalf("fetch to stdout: %v", err)
	}
	requireContains(t, out, "# CLI Video")

	if _, _, err := runCLI(t, env, "fetch", "notes.txt", "-o", dest); err == nil {
		t.Fatal("expected non-markdown fetch to fail")
	}
	entries, _ := os.ReadDir(dest)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".vidscribe-fetch-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCancelRunningTask(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	env := setupCLITestEnv(t, &testsupport.FakeFetcher{Gate: gate})

	out, _, err := runCLI(t, env, "submit", testVideoURL)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id := taskIDFromSubmit(t, out)

	out, _, err = runCLI(t, env, "active")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	requireContains(t, out, "Active tasks: 1")
	requireContains(t, out, testVideoURL)

	out, _, err = runCLI(t, env, "cancel", id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Task cancelled")

	if _, _, err := runCLI(t, env, "show", id); err == nil {
		t.Fatal("expected show to fail after cancel")
	}
}

func TestSubmitInvalidURL(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	_, _, err := runCLI(t, env, "submit", "ftp://example.com/video")
	if err == nil {
		t.Fatal("expected invalid url error")
	}
	requireContains(t, err.Error(), "http")
}

func TestStatusAndCheck(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running")
	requireContains(t, out, "Dependencies")

	out, _, err = runCLI(t, env, "check", "--local")
	if err != nil {
		t.Fatalf("check --local: %v\n%s", err, out)
	}
	requireContains(t, out, "Preflight")
	requireContains(t, out, "yt-dlp")
}

func TestDaemonUnreachable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	env := &cliTestEnv{cfg: cfg, configPath: configPath, url: "http://127.0.0.1:1"}

	_, _, err := runCLI(t, env, "list")
	if err == nil {
		t.Fatal("expected connection error")
	}
	requireContains(t, err.Error(), "connect to daemon")

	out, _, err := runCLI(t, env, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatBytes(512); got != "512 B" {
		t.Fatalf("formatBytes(512) = %q", got)
	}
	if got := formatBytes(1536); got != "1.5 KiB" {
		t.Fatalf("formatBytes(1536) = %q", got)
	}
	if got := formatAge(time.Now()); got != "just now" {
		t.Fatalf("formatAge(now) = %q", got)
	}
	line := formatLogEvent(logging.LogEvent{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		Level:     "INFO",
		Message:   "stage done",
		TaskID:    "abc",
		Fields:    map[string]string{"b": "2", "a": "1"},
	})
	if line != "03:04:05 INFO  abc stage done a=1 b=2" {
		t.Fatalf("unexpected log line %q", line)
	}
	if got := progressLine(tasks.Task{Progress: 5, Stage: tasks.StageFetching, Message: "Downloading"}); got != "[  5%] fetching     Downloading" {
		t.Fatalf("unexpected progress line %q", got)
	}
}
