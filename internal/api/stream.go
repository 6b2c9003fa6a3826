package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxStreamLine = 4 << 20

// Stream follows a task until the daemon ends the stream, ctx is done, or fn
// returns an error. fn errors are returned unchanged.
func (c *Client) Stream(ctx context.Context, id string, fn func(StreamEvent) error) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/task-stream/"+url.PathEscape(id), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return readStream(resp.Body, fn)
}

func readStream(r io.Reader, fn func(StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxStreamLine)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		event, err := decodeStreamEvent([]byte(strings.TrimSpace(data)))
		if err != nil {
			return err
		}
		if err := fn(event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read task stream: %w", err)
	}
	return nil
}

func decodeStreamEvent(data []byte) (StreamEvent, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	if probe.Type == HeartbeatType {
		return StreamEvent{Heartbeat: true}, nil
	}
	var event StreamEvent
	if err := json.Unmarshal(data, &event.Task); err != nil {
		return StreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}
	return event, nil
}
