package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeGeneration(); err != nil {
		return err
	}
	c.normalizeTranscription()
	if err := c.normalizeFetch(); err != nil {
		return err
	}
	c.normalizeChunking()
	c.normalizeTasks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.WatchDir, err = expandPath(strings.TrimSpace(c.Paths.WatchDir)); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VIDSCRIBE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeGeneration() error {
	c.Generation.Backend = strings.ToLower(strings.TrimSpace(c.Generation.Backend))
	if c.Generation.Backend == "" {
		c.Generation.Backend = defaultBackend
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	c.Generation.BaseURL = strings.TrimSpace(c.Generation.BaseURL)
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)

	switch c.Generation.Backend {
	case BackendOpenAI:
		if c.Generation.APIKey == "" {
			if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
				c.Generation.APIKey = strings.TrimSpace(value)
			}
		}
		if c.Generation.BaseURL == "" {
			if value, ok := os.LookupEnv("OPENAI_BASE_URL"); ok && strings.TrimSpace(value) != "" {
				c.Generation.BaseURL = strings.TrimSpace(value)
			} else {
				c.Generation.BaseURL = defaultOpenAIBaseURL
			}
		}
		if c.Generation.Model == "" {
			c.Generation.Model = defaultOpenAIModel
		}
	case BackendGemini:
		if c.Generation.APIKey == "" {
			if value, ok := os.LookupEnv("GEMINI_API_KEY"); ok {
				c.Generation.APIKey = strings.TrimSpace(value)
			} else if value, ok := os.LookupEnv("GOOGLE_API_KEY"); ok {
				c.Generation.APIKey = strings.TrimSpace(value)
			}
		}
		if c.Generation.Model == "" {
			c.Generation.Model = defaultGeminiModel
		}
	case BackendOllama:
		if c.Generation.BaseURL == "" {
			if value, ok := os.LookupEnv("OLLAMA_HOST"); ok && strings.TrimSpace(value) != "" {
				c.Generation.BaseURL = strings.TrimSpace(value)
			} else {
				c.Generation.BaseURL = defaultOllamaBaseURL
			}
		}
		if c.Generation.Model == "" {
			c.Generation.Model = defaultOllamaModel
		}
	}

	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
	if c.Generation.RetryAttempts <= 0 {
		c.Generation.RetryAttempts = defaultRetryAttempts
	}
	if c.Generation.RequestsPerMinute < 0 {
		c.Generation.RequestsPerMinute = 0
	}
	var err error
	if c.Generation.PromptsFile, err = expandPath(strings.TrimSpace(c.Generation.PromptsFile)); err != nil {
		return fmt.Errorf("generation.prompts_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultWhisperModel
	}
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	c.Transcription.HFToken = strings.TrimSpace(c.Transcription.HFToken)
	if c.Transcription.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeFetch() error {
	c.Fetch.Format = strings.TrimSpace(c.Fetch.Format)
	if c.Fetch.Format == "" {
		c.Fetch.Format = defaultFetchFormat
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultFetchTimeout
	}
	var err error
	if c.Fetch.CookiesFile, err = expandPath(strings.TrimSpace(c.Fetch.CookiesFile)); err != nil {
		return fmt.Errorf("fetch.cookies_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeChunking() {
	if c.Chunking.ChunkChars <= 0 {
		c.Chunking.ChunkChars = defaultChunkChars
	}
	if c.Chunking.ContextChars < 0 {
		c.Chunking.ContextChars = 0
	}
	if c.Chunking.OverlapWindow <= 0 {
		c.Chunking.OverlapWindow = defaultOverlapWindow
	}
	if c.Chunking.MinOverlap <= 0 {
		c.Chunking.MinOverlap = defaultMinOverlap
	}
	if c.Chunking.SafeCutFloor < 0 {
		c.Chunking.SafeCutFloor = defaultSafeCutFloor
	}
	if c.Chunking.ParagraphCap <= 0 {
		c.Chunking.ParagraphCap = defaultParagraphCap
	}
	if c.Chunking.SentenceFloor <= 0 {
		c.Chunking.SentenceFloor = defaultSentenceFloor
	}
	if c.Chunking.WhitespaceFloor <= 0 {
		c.Chunking.WhitespaceFloor = defaultWhitespaceFloor
	}
	if c.Chunking.Concurrency <= 0 {
		c.Chunking.Concurrency = defaultConcurrency
	}
	if c.Chunking.SummaryGroupSize <= 1 {
		c.Chunking.SummaryGroupSize = defaultSummaryGroupSize
	}
}

func (c *Config) normalizeTasks() {
	c.Tasks.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.Tasks.DefaultLanguage))
	if c.Tasks.DefaultLanguage == "" {
		c.Tasks.DefaultLanguage = defaultLanguage
	}
	if c.Tasks.HeartbeatSeconds <= 0 {
		c.Tasks.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if c.Tasks.SubscriberBuffer <= 0 {
		c.Tasks.SubscriberBuffer = defaultSubscriberBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.StreamCapacity <= 0 {
		c.Logging.StreamCapacity = defaultStreamCapacity
	}
}
