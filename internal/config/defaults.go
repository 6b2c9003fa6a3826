package config

const (
	defaultConfigPath        = "~/.config/vidscribe/config.toml"
	defaultDataDir           = "~/.local/share/vidscribe"
	defaultWorkDir           = "~/.local/share/vidscribe/work"
	defaultLogDir            = "~/.local/share/vidscribe/logs"
	defaultAPIBind           = "127.0.0.1:8893"
	defaultBackend           = BackendOpenAI
	defaultOpenAIBaseURL     = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel       = "gpt-4o"
	defaultGeminiModel       = "gemini-2.5-flash"
	defaultOllamaBaseURL     = "http://127.0.0.1:11434"
	defaultOllamaModel       = "llama3.1"
	defaultGenerationTimeout = 120
	defaultRetryAttempts     = 3
	defaultWhisperModel      = "large-v3"
	defaultVADMethod         = "silero"
	defaultFetchFormat       = "bestaudio/best"
	defaultFetchTimeout      = 1800
	defaultChunkChars        = 4000
	defaultContextChars      = 100
	defaultOverlapWindow     = 200
	defaultMinOverlap        = 20
	defaultSafeCutFloor      = 20
	defaultParagraphCap      = 400
	defaultSentenceFloor     = 0.7
	defaultWhitespaceFloor   = 0.8
	defaultConcurrency       = 1
	defaultSummaryGroupSize  = 10
	defaultLanguage          = "zh-tw"
	defaultHeartbeatSeconds  = 30
	defaultSubscriberBuffer  = 16
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultStreamCapacity    = 512
)

// Generation backends.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Generation: Generation{
			Backend:        defaultBackend,
			TimeoutSeconds: defaultGenerationTimeout,
			RetryAttempts:  defaultRetryAttempts,
		},
		Transcription: Transcription{
			Model:     defaultWhisperModel,
			VADMethod: defaultVADMethod,
		},
		Fetch: Fetch{
			Format:         defaultFetchFormat,
			TimeoutSeconds: defaultFetchTimeout,
		},
		Chunking: Chunking{
			ChunkChars:       defaultChunkChars,
			ContextChars:     defaultContextChars,
			OverlapWindow:    defaultOverlapWindow,
			MinOverlap:       defaultMinOverlap,
			SafeCutFloor:     defaultSafeCutFloor,
			ParagraphCap:     defaultParagraphCap,
			SentenceFloor:    defaultSentenceFloor,
			WhitespaceFloor:  defaultWhitespaceFloor,
			Concurrency:      defaultConcurrency,
			SummaryGroupSize: defaultSummaryGroupSize,
		},
		Tasks: Tasks{
			DefaultLanguage:  defaultLanguage,
			HeartbeatSeconds: defaultHeartbeatSeconds,
			SubscriberBuffer: defaultSubscriberBuffer,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			StreamCapacity: defaultStreamCapacity,
		},
	}
}
