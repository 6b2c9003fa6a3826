package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"vidscribe/internal/services/llm"
)

const defaultTimeout = 120 * time.Second

// Config captures the Gemini settings.
type Config struct {
	// APIKeys is tried in order; quota errors rotate to the next key.
	APIKeys        []string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// SplitKeys parses a comma separated key list.
func SplitKeys(raw string) []string {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// Client generates text with a Gemini model.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu      sync.Mutex
	current int
	clients map[int]*genai.Client
}

// New constructs a client. At least one API key is required.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("gemini: api key required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini: model required")
	}
	cfg.APIKeys = keys
	if httpClient == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient, clients: make(map[int]*genai.Client)}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Generate sends one GenerateContent call and concatenates the text parts of
// the first candidate.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	config := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	temperature := float32(req.Temperature)
	config.Temperature = &temperature

	var lastErr error
	for range len(c.cfg.APIKeys) {
		client, index, err := c.activeClient(ctx)
		if err != nil {
			return "", err
		}
		result, err := client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(req.Prompt), config)
		if err != nil {
			if isQuotaError(err) && len(c.cfg.APIKeys) > 1 {
				c.rotate(index)
				lastErr = err
				continue
			}
			return "", fmt.Errorf("gemini generate: %w", err)
		}
		text := extractText(result)
		if text == "" {
			return "", errors.New("gemini generate: empty response")
		}
		return text, nil
	}
	return "", fmt.Errorf("gemini generate: all api keys exhausted: %w", lastErr)
}

// Ping issues a minimal generation to verify credentials and model access.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Generate(ctx, llm.Request{Prompt: "Reply with the single word OK.", MaxTokens: 5})
	return err
}

func (c *Client) activeClient(ctx context.Context) (*genai.Client, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := c.current
	if client, ok := c.clients[index]; ok {
		return client, index, nil
	}
	cc := &genai.ClientConfig{
		APIKey:     c.cfg.APIKeys[index],
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if base := strings.TrimSpace(c.cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, index, fmt.Errorf("gemini: create client: %w", err)
	}
	c.clients[index] = client
	return client, index, nil
}

func (c *Client) rotate(from int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == from {
		c.current = (c.current + 1) % len(c.cfg.APIKeys)
	}
}

func extractText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func isQuotaError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
