package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vidscribe/internal/language"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service provides WhisperX transcription.
type Service struct {
	cfg           Config
	binary        string
	commandRunner CommandRunner
}

// NewService creates a WhisperX service with the given configuration. An
// empty binary selects uvx from PATH.
func NewService(cfg Config, binary string) *Service {
	if binary == "" {
		binary = UVXCommand
	}
	return &Service{cfg: cfg, binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// Binary returns the executable used to launch WhisperX.
func (s *Service) Binary() string { return s.binary }

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load default to weights_only=true, breaking WhisperX/pyannote.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tailOutput(output))
	}
	return nil
}

func tailOutput(output []byte) string {
	text := strings.TrimSpace(string(output))
	const limit = 800
	if len(text) > limit {
		text = "..." + text[len(text)-limit:]
	}
	return text
}

// Result is one finished transcription.
type Result struct {
	// Language is the ISO 639-1 code WhisperX detected (or was told to use).
	Language string
	Segments []Segment
	// Markdown is the raw timestamped transcript.
	Markdown string
	JSONPath string
}

// Transcribe runs WhisperX on source and writes its JSON output to outputDir.
// language may be empty to let WhisperX detect it.
func (s *Service) Transcribe(ctx context.Context, source, outputDir, lang string) (Result, error) {
	var result Result

	if source == "" {
		return result, fmt.Errorf("transcribe: source path required")
	}
	if _, err := os.Stat(source); err != nil {
		return result, fmt.Errorf("transcribe: audio file: %w", err)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	args := s.buildArgs(source, outputDir, lang)
	if err := s.run(ctx, s.binary, args...); err != nil {
		return result, fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	result.JSONPath = filepath.Join(outputDir, baseName+".json")

	payload, err := loadPayload(result.JSONPath)
	if err != nil {
		return result, fmt.Errorf("whisperx: %w", err)
	}
	result.Segments = payload.Segments
	result.Language = language.ToISO2(payload.Language)
	if result.Language == "" {
		result.Language = language.ToISO2(lang)
	}
	if result.Language == "" {
		result.Language = language.Guess(joinSegments(payload.Segments))
	}
	result.Markdown = FormatMarkdown(result.Language, payload.Segments)
	return result, nil
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir, lang string) []string {
	args := make([]string, 0, 32)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.Model(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--beam_size", BeamSize,
		"--best_of", BestOf,
		"--temperature", Temperature,
	)

	vadMethod := s.cfg.VADMethod
	if vadMethod == "" {
		vadMethod = VADMethodSilero
	}
	args = append(args, "--vad_method", vadMethod)
	if vadMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}

	if code := language.ToISO2(lang); code != "" {
		args = append(args, "--language", code)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}

	return args
}

// Segment represents a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type payload struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func loadPayload(jsonPath string) (payload, error) {
	var p payload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return p, fmt.Errorf("read output: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse whisperx json: %w", err)
	}
	return p, nil
}

func joinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
