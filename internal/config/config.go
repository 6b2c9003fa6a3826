package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	WatchDir string `toml:"watch_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Generation contains settings for the text generation backend.
type Generation struct {
	// Backend selects the implementation: "openai", "gemini", or "ollama".
	Backend           string `toml:"backend"`
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	RetryAttempts     int    `toml:"retry_attempts"`
	PromptsFile       string `toml:"prompts_file"`
}

// Transcription contains WhisperX settings.
type Transcription struct {
	Model       string `toml:"model"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
}

// Fetch contains yt-dlp settings.
type Fetch struct {
	Format         string `toml:"format"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CookiesFile    string `toml:"cookies_file"`
}

// Chunking contains the single policy used wherever long text is split and stitched.
type Chunking struct {
	ChunkChars       int     `toml:"chunk_chars"`
	ContextChars     int     `toml:"context_chars"`
	OverlapWindow    int     `toml:"overlap_window"`
	MinOverlap       int     `toml:"min_overlap"`
	SafeCutFloor     int     `toml:"safe_cut_floor"`
	ParagraphCap     int     `toml:"paragraph_cap"`
	SentenceFloor    float64 `toml:"sentence_floor"`
	WhitespaceFloor  float64 `toml:"whitespace_floor"`
	Concurrency      int     `toml:"concurrency"`
	SummaryGroupSize int     `toml:"summary_group_size"`
}

// Tasks contains task lifecycle settings.
type Tasks struct {
	DefaultLanguage  string `toml:"default_language"`
	HeartbeatSeconds int    `toml:"heartbeat_seconds"`
	SubscriberBuffer int    `toml:"subscriber_buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	StreamCapacity int    `toml:"stream_capacity"`
}

// Config encapsulates all configuration values for vidscribe.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address and token
//   - Generation: text generation backend and prompt overrides
//   - Transcription: WhisperX model and device
//   - Fetch: yt-dlp download settings
//   - Chunking: split/stitch policy for long transcripts
//   - Tasks: default language and live update tuning
//   - Logging: log format, level, and stream buffer
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	Transcription Transcription `toml:"transcription"`
	Fetch         Fetch         `toml:"fetch"`
	Chunking      Chunking      `toml:"chunking"`
	Tasks         Tasks         `toml:"tasks"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidscribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.WatchDir) != "" {
		if err := os.MkdirAll(c.Paths.WatchDir, 0o755); err != nil {
			return fmt.Errorf("create watch directory %q: %w", c.Paths.WatchDir, err)
		}
	}
	return nil
}

// TasksFile returns the path of the persisted task table.
func (c *Config) TasksFile() string {
	return filepath.Join(c.Paths.DataDir, "tasks.json")
}

// CatalogPath returns the path of the artifact catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LockPath returns the path of the daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "vidscribed.lock")
}

// DaemonURL returns the base URL clients use to reach the API.
func (c *Config) DaemonURL() string {
	bind := strings.TrimSpace(c.Paths.APIBind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if strings.HasPrefix(bind, "0.0.0.0:") {
		bind = "127.0.0.1:" + strings.TrimPrefix(bind, "0.0.0.0:")
	}
	return "http://" + bind
}

// YTDLPBinary returns the yt-dlp executable name.
func (c *Config) YTDLPBinary() string {
	return "yt-dlp"
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// UVXBinary returns the uvx executable name used to launch WhisperX.
func (c *Config) UVXBinary() string {
	return "uvx"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
