package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidscribe/internal/config"
	"vidscribe/internal/daemon"
	"vidscribe/internal/logging"
	"vidscribe/internal/services/llm"
	"vidscribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	url        string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, fetcher *testsupport.FakeFetcher) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	if fetcher == nil {
		fetcher = &testsupport.FakeFetcher{Title: "CLI Video"}
	}
	hub := logging.NewStreamHub(256)
	d, err := daemon.New(cfg, testsupport.NewLogger(t, hub), hub,
		daemon.WithFetcher(fetcher),
		daemon.WithTranscriber(&testsupport.FakeTranscriber{Language: "en"}),
		daemon.WithGenerator(&testsupport.FakeGenerator{Respond: func(llm.Request) (string, error) {
			return "cli summary text", nil
		}}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		url:        "http://" + d.Addr().String(),
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if env != nil {
		flags = append(flags, "--config", env.configPath, "--url", env.url)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nwork_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[generation]\nbackend = %q\napi_key = %q\nmodel = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.WorkDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Generation.Backend,
		cfg.Generation.APIKey,
		cfg.Generation.Model,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// taskIDFromSubmit extracts the id from "<id>: <message>".
func taskIDFromSubmit(t *testing.T, out string) string {
	t.Helper()
	line := strings.SplitN(strings.TrimSpace(out), "\n", 2)[0]
	id, _, ok := strings.Cut(line, ":")
	if !ok || id == "" {
		t.Fatalf("unexpected submit output %q", out)
	}
	return id
}
