package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestFetchDownloadsAudio(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{CookiesFile: "/tmp/cookies.txt"})
	svc.newID = func() string { return "abcd1234" }

	var calls [][]string
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != YTDLPCommand {
			t.Errorf("unexpected binary %q", name)
		}
		calls = append(calls, args)
		if slices.Contains(args, "--print") {
			return []byte("\nA Great Talk\n"), nil
		}
		return nil, os.WriteFile(filepath.Join(dir, "audio_abcd1234.wav"), []byte("RIFF"), 0o644)
	})

	media, err := svc.Fetch(context.Background(), " https://example.com/watch?v=1 ", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if media.Title != "A Great Talk" {
		t.Fatalf("unexpected title %q", media.Title)
	}
	if filepath.Base(media.AudioPath) != "audio_abcd1234.wav" {
		t.Fatalf("unexpected audio path %q", media.AudioPath)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 yt-dlp calls, got %d", len(calls))
	}
	download := strings.Join(calls[1], " ")
	for _, want := range []string{"-x", "--audio-format wav", postprocessArgs, "--cookies /tmp/cookies.txt", "https://example.com/watch?v=1"} {
		if !strings.Contains(download, want) {
			t.Errorf("download args missing %q: %s", want, download)
		}
	}
}

func TestFetchMissingAudio(t *testing.T) {
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("title"), nil
	})
	_, err := svc.Fetch(context.Background(), "https://example.com/v", t.TempDir())
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("expected ErrNoAudio, got %v", err)
	}
}

func TestFetchTitleFailure(t *testing.T) {
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("unsupported url")
	})
	_, err := svc.Fetch(context.Background(), "https://example.com/v", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "unsupported url") {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestFetchRequiresURL(t *testing.T) {
	if _, err := NewService(Config{}).Fetch(context.Background(), "  ", t.TempDir()); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestLocateAudioFallsBackToOtherContainers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "audio_x.m4a"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, err := locateAudio(dir, "audio_x")
	if err != nil {
		t.Fatalf("locateAudio: %v", err)
	}
	if filepath.Ext(path) != ".m4a" {
		t.Fatalf("unexpected path %q", path)
	}
}
