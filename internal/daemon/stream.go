package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/tasks"
	"vidscribe/internal/updates"
)

// heartbeatPayload is sent when a task stays idle for the heartbeat window.
var heartbeatPayload = []byte(`{"type":"heartbeat"}`)

// handleStream serves a task as Server-Sent Events. The first event is the
// current snapshot; the stream ends after a terminal snapshot, when the task
// is deleted, or when the client goes away.
func (s *apiServer) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, task, err := s.service.Subscribe(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := logging.TaskLogger(s.logger, id)
	logger.Debug("stream opened", logging.String(logging.FieldCorrelationID, requestIDFrom(r)))

	if err := writeEvent(w, rc, task); err != nil || task.IsTerminal() {
		return
	}

	ctx := r.Context()
	for {
		ev, err := sub.Next(ctx)
		switch {
		case errors.Is(err, updates.ErrDropped):
			// Dropped for being slow or because the task was deleted. The
			// stored record decides which.
			sub.Close()
			sub, task, err = s.service.Subscribe(id)
			if err != nil {
				if !errors.Is(err, services.ErrNotFound) {
					logger.Warn("stream resubscribe failed",
						logging.Error(err),
						logging.String(logging.FieldEventType, "stream_resubscribe_failed"),
						logging.String(logging.FieldErrorHint, "client should poll task status"),
					)
				}
				return
			}
			if err := writeEvent(w, rc, task); err != nil || task.IsTerminal() {
				return
			}
			continue
		case err != nil:
			return
		}

		if ev.Type == updates.EventHeartbeat {
			if err := writeData(w, rc, heartbeatPayload); err != nil {
				return
			}
			continue
		}
		if err := writeEvent(w, rc, *ev.Task); err != nil || ev.Task.IsTerminal() {
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, task tasks.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return writeData(w, rc, data)
}

func writeData(w http.ResponseWriter, rc *http.ResponseController, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
