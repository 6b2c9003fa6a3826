package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"vidscribe/internal/services/llm"
)

const defaultTimeout = 300 * time.Second

// Config captures the Ollama settings.
type Config struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client generates text with a locally hosted model.
type Client struct {
	model string
	api   *api.Client
}

// New constructs a client for the server at cfg.BaseURL.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama: model required")
	}
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: invalid base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		timeout := defaultTimeout
		if cfg.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{model: cfg.Model, api: api.NewClient(base, httpClient)}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate runs a non-streaming generate call.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	var b strings.Builder
	err := c.api.Generate(ctx, &api.GenerateRequest{
		Model:   c.model,
		Prompt:  req.Prompt,
		System:  strings.TrimSpace(req.System),
		Stream:  &stream,
		Options: options,
	}, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("ollama generate: empty response")
	}
	return text, nil
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama ping: %w", err)
	}
	return nil
}
