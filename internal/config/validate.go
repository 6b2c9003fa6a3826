package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateChunking(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateGeneration() error {
	switch c.Generation.Backend {
	case BackendOpenAI, BackendGemini, BackendOllama:
	default:
		return fmt.Errorf("generation.backend: unsupported value %q (want openai, gemini, or ollama)", c.Generation.Backend)
	}
	if c.Generation.Model == "" {
		return errors.New("generation.model must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method: unsupported value %q", c.Transcription.VADMethod)
	}
	return nil
}

func (c *Config) validateChunking() error {
	ch := c.Chunking
	if ch.ChunkChars < 200 {
		return fmt.Errorf("chunking.chunk_chars must be at least 200 (got %d)", ch.ChunkChars)
	}
	if ch.ContextChars >= ch.ChunkChars {
		return errors.New("chunking.context_chars must be smaller than chunking.chunk_chars")
	}
	if ch.MinOverlap > ch.OverlapWindow {
		return errors.New("chunking.min_overlap must not exceed chunking.overlap_window")
	}
	if ch.SentenceFloor >= 1 || ch.WhitespaceFloor >= 1 {
		return errors.New("chunking.sentence_floor and chunking.whitespace_floor must be below 1")
	}
	if ch.ParagraphCap < 50 {
		return fmt.Errorf("chunking.paragraph_cap must be at least 50 (got %d)", ch.ParagraphCap)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
