package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidscribe/internal/artifacts"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/preflight"
	"vidscribe/internal/tasks"
)

const defaultRequestTimeout = 60 * time.Second

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return e.Message
}

// IsNotFound reports whether err is a 404 reply.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 reply.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the vidscribed HTTP API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestTimeout bounds every call except Stream.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// NewClient builds a client for baseURL, e.g. "http://127.0.0.1:8893".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient:     &http.Client{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches liveness and daemon status.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Submit queues url for processing. An empty lang uses the daemon default.
func (c *Client) Submit(ctx context.Context, videoURL, lang string) (pipeline.Submission, error) {
	var out pipeline.Submission
	err := c.doJSON(ctx, http.MethodPost, "/api/process-video", SubmitRequest{URL: videoURL, SummaryLanguage: lang}, &out)
	return out, err
}

// Task returns one task snapshot.
func (c *Client) Task(ctx context.Context, id string) (tasks.Task, error) {
	var out tasks.Task
	err := c.doJSON(ctx, http.MethodGet, "/api/task-status/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Tasks lists every stored task.
func (c *Client) Tasks(ctx context.Context) ([]tasks.Task, error) {
	var out []tasks.Task
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks", nil, &out)
	return out, err
}

// Active returns the running tasks and claimed URLs.
func (c *Client) Active(ctx context.Context) (pipeline.Active, error) {
	var out pipeline.Active
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/active", nil, &out)
	return out, err
}

// Cancel stops and removes a task.
func (c *Client) Cancel(ctx context.Context, id string) (CancelResponse, error) {
	var out CancelResponse
	err := c.doJSON(ctx, http.MethodDelete, "/api/task/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Artifacts lists the catalog entries recorded for a task.
func (c *Client) Artifacts(ctx context.Context, id string) ([]artifacts.Entry, error) {
	var out []artifacts.Entry
	err := c.doJSON(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id)+"/artifacts", nil, &out)
	return out, err
}

// Check runs the daemon's preflight checks, including a backend ping.
func (c *Client) Check(ctx context.Context) ([]preflight.Result, error) {
	var out []preflight.Result
	err := c.doJSON(ctx, http.MethodPost, "/api/check", nil, &out)
	return out, err
}

// Logs fetches buffered daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.TaskID != "" {
		values.Set("task", q.TaskID)
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	path := "/api/logs"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out LogResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Download copies the named artifact to w and returns the byte count.
func (c *Client) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	resp, err := c.do(ctx, http.MethodGet, "/api/download/"+url.PathEscape(name), nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", name, err)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var (
		reader      io.Reader
		contentType string
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	resp, err := c.do(ctx, method, path, reader, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do sends the request and converts non-2xx replies into *Error.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload ErrorResponse
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = strings.TrimSpace(payload.Error)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(payload.Detail)
		}
	}
	return apiErr
}
