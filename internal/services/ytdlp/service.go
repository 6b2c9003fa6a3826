package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command names for external tools.
const (
	YTDLPCommand    = "yt-dlp"
	DefaultFormat   = "bestaudio/best"
	audioExtension  = "wav"
	postprocessArgs = "ffmpeg:-ac 1 -ar 16000"
)

// ErrNoAudio is returned when yt-dlp exits cleanly without producing audio.
var ErrNoAudio = errors.New("downloaded audio file not found")

// Config captures yt-dlp settings.
type Config struct {
	Binary       string
	FFmpegBinary string
	Format       string
	CookiesFile  string
	Timeout      time.Duration
}

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Media is the fetched audio.
type Media struct {
	AudioPath string
	Title     string
}

// Service downloads media audio.
type Service struct {
	cfg           Config
	commandRunner CommandRunner
	newID         func() string
}

// NewService creates a fetcher.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = YTDLPCommand
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	return &Service{
		cfg:   cfg,
		newID: func() string { return uuid.NewString()[:8] },
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
}

// Binary returns the yt-dlp executable.
func (s *Service) Binary() string { return s.cfg.Binary }

// Fetch resolves the title of url and downloads its audio into dir.
func (s *Service) Fetch(ctx context.Context, url, dir string) (Media, error) {
	var media Media
	url = strings.TrimSpace(url)
	if url == "" {
		return media, errors.New("fetch: url required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return media, fmt.Errorf("fetch: ensure dir: %w", err)
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	out, err := s.run(ctx, s.cfg.Binary, s.titleArgs(url)...)
	if err != nil {
		return media, fmt.Errorf("yt-dlp title: %w", err)
	}
	media.Title = firstLine(out)
	if media.Title == "" {
		media.Title = "unknown"
	}

	stem := "audio_" + s.newID()
	if _, err := s.run(ctx, s.cfg.Binary, s.downloadArgs(url, dir, stem)...); err != nil {
		return media, fmt.Errorf("yt-dlp download: %w", err)
	}
	path, err := locateAudio(dir, stem)
	if err != nil {
		return media, err
	}
	media.AudioPath = path
	return media, nil
}

func (s *Service) titleArgs(url string) []string {
	args := []string{"--no-playlist", "--skip-download", "--no-warnings", "--print", "title"}
	args = append(args, s.commonArgs()...)
	return append(args, url)
}

func (s *Service) downloadArgs(url, dir, stem string) []string {
	args := []string{
		"--no-playlist",
		"--no-warnings",
		"--quiet",
		"-f", s.cfg.Format,
		"-x",
		"--audio-format", audioExtension,
		"--postprocessor-args", postprocessArgs,
		"-o", filepath.Join(dir, stem+".%(ext)s"),
	}
	args = append(args, s.commonArgs()...)
	return append(args, url)
}

func (s *Service) commonArgs() []string {
	var args []string
	if s.cfg.CookiesFile != "" {
		args = append(args, "--cookies", s.cfg.CookiesFile)
	}
	if s.cfg.FFmpegBinary != "" {
		args = append(args, "--ffmpeg-location", s.cfg.FFmpegBinary)
	}
	return args
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// locateAudio prefers the converted WAV but accepts other audio containers
// when conversion was skipped.
func locateAudio(dir, stem string) (string, error) {
	for _, ext := range []string{audioExtension, "m4a", "webm", "mp3", "opus", "mp4"} {
		path := filepath.Join(dir, stem+"."+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("fetch: %w in %s", ErrNoAudio, dir)
}

func firstLine(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
