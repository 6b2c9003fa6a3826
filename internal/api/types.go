package api

import (
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/preflight"
	"vidscribe/internal/tasks"
)

// SubmitRequest is the body of POST /api/process-video.
type SubmitRequest struct {
	URL             string `json:"url"`
	SummaryLanguage string `json:"summary_language,omitempty"`
}

// CancelResponse is the body of a successful DELETE /api/task/{id}.
type CancelResponse struct {
	Message string `json:"message"`
	TaskID  string `json:"task_id"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// LogResponse is the body of GET /api/logs.
type LogResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// LogQuery selects log events. Zero values mean "latest".
type LogQuery struct {
	Since  uint64
	Limit  int
	TaskID string
	Follow bool
}

// DaemonStatus represents daemon runtime information.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    time.Time          `json:"started_at"`
	ActiveTasks  int                `json:"active_tasks"`
	Claims       int                `json:"processing_urls"`
	StoredTasks  int                `json:"stored_tasks"`
	LockFilePath string             `json:"lock_file"`
	Address      string             `json:"address"`
	Preflight    []preflight.Result `json:"preflight"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Daemon    DaemonStatus `json:"daemon"`
}

// HeartbeatType marks keep-alive frames on the task stream.
const HeartbeatType = "heartbeat"

// StreamEvent is one frame of GET /api/task-stream/{id}.
type StreamEvent struct {
	Heartbeat bool
	Task      tasks.Task
}
