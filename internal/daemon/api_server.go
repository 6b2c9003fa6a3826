package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"vidscribe/internal/api"
	"vidscribe/internal/artifacts"
	"vidscribe/internal/config"
	"vidscribe/internal/logging"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/services"
	"vidscribe/internal/tasks"
)

const (
	maxFormBytes   = 1 << 20
	logFollowLimit = 25 * time.Second
)

type apiServer struct {
	bind    string
	token   string
	logger  *slog.Logger
	daemon  *Daemon
	service *pipeline.Service

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:    strings.TrimSpace(cfg.Paths.APIBind),
		token:   strings.TrimSpace(cfg.Paths.APIToken),
		logger:  logging.NewComponentLogger(logger, "api-server"),
		daemon:  d,
		service: d.service,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/process-video", s.auth(s.handleSubmit))
	mux.HandleFunc("GET /api/task-status/{id}", s.auth(s.handleStatus))
	mux.HandleFunc("GET /api/task-stream/{id}", s.auth(s.handleStream))
	mux.HandleFunc("DELETE /api/task/{id}", s.auth(s.handleCancel))
	mux.HandleFunc("GET /api/download/{filename}", s.auth(s.handleDownload))
	mux.HandleFunc("GET /api/tasks", s.auth(s.handleList))
	mux.HandleFunc("GET /api/tasks/active", s.auth(s.handleActive))
	mux.HandleFunc("GET /api/tasks/{id}/artifacts", s.auth(s.handleArtifacts))
	mux.HandleFunc("POST /api/check", s.auth(s.handleCheck))
	mux.HandleFunc("GET /api/logs", s.auth(s.handleLogs))
	return requestIDMiddleware(mux)
}

func (s *apiServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return authMiddleware(s.token, next)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api listen: paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "api_serve_failed"),
				logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Daemon:    s.daemon.Status(),
	})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmit(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sub, err := s.service.Submit(r.Context(), req.URL, req.SummaryLanguage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func decodeSubmit(w http.ResponseWriter, r *http.Request) (api.SubmitRequest, error) {
	var req api.SubmitRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFormBytes)).Decode(&req); err != nil {
			return req, services.Wrap(services.ErrValidation, "api", "decode body", "invalid JSON body", err)
		}
		return req, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return req, services.Wrap(services.ErrValidation, "api", "decode form", "invalid form body", err)
	}
	req.URL = r.FormValue("url")
	req.SummaryLanguage = r.FormValue("summary_language")
	return req, nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *apiServer) handleList(w http.ResponseWriter, _ *http.Request) {
	list := s.service.List()
	if list == nil {
		list = []tasks.Task{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.Cancel(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Message: "Task cancelled", TaskID: id})
}

func (s *apiServer) handleActive(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.Active())
}

func (s *apiServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.service.Get(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.service.Artifacts().List(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []artifacts.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	path, err := s.service.Artifacts().Resolve(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "api", "download", "file "+name+" not found", err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *apiServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Check(r.Context()))
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.LogStream()
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogResponse{Events: []logging.LogEvent{}})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	taskID := strings.TrimSpace(query.Get("task"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if since == 0 && !follow && taskID == "" {
		events, next = hub.Tail(limit)
	} else {
		ctx := r.Context()
		if follow {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, logFollowLimit)
			defer cancel()
		}
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, taskID, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, r, err)
			return
		}
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			return
		}
	}
	if events == nil {
		events = []logging.LogEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.LogResponse{Events: events, Next: next})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_encode_failed"),
			logging.String(logging.FieldErrorHint, "client disconnected or payload not serializable"),
		)
	}
}

// writeError maps error markers to status codes. Both "error" and "detail"
// carry the message.
func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := services.UserMessage(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldCorrelationID, requestIDFrom(r)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "see the daemon log for the cause"),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Detail: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
