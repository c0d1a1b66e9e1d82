package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"mina/internal/config"
	"mina/internal/logging"
	"mina/internal/sessions"
)

// maxRequestBody bounds accepted request bodies.
const maxRequestBody = 4 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/sessions", authMiddleware(token, srv.handleSessions))
	mux.HandleFunc("/api/sessions/", authMiddleware(token, srv.handleSession))
	mux.HandleFunc("/api/events", authMiddleware(token, srv.handleEvents))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address once the server started.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Running:       status.Running,
		Pending:       status.Sessions.Pending,
		Processing:    status.Sessions.Processing,
		Completed:     status.Sessions.Completed,
		Failed:        status.Sessions.Failed,
		Total:         status.Sessions.Total,
		Stages:        toStageHealthViews(status.Stages),
		Database:      toDatabaseHealthView(status.Database),
		SessionDBPath: status.SessionDBPath,
		LockFilePath:  status.LockFilePath,
		LogFilePath:   status.LogFilePath,
		APIBind:       status.APIBind,
	})
}

func (s *apiServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		s.createSession(w, r)
		return
	case http.MethodDelete:
		s.clearSessions(w, r)
		return
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []sessions.Status
	for _, value := range r.URL.Query()["status"] {
		parsed, ok := sessions.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, parsed)
	}

	list, err := s.daemon.ListSessions(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]SessionView, 0, len(list))
	for _, session := range list {
		views = append(views, toSessionView(session))
	}
	s.writeJSON(w, http.StatusOK, SessionListResponse{Sessions: views})
}

// createSession enqueues a finished transcript for post-processing.
func (s *apiServer) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.daemon.AddSession(r.Context(), req.Title, req.Transcript)
	if err != nil {
		if strings.TrimSpace(req.Transcript) == "" {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, toSessionView(session))
}

// clearSessions removes sessions in the scope given by the scope query
// parameter: all, completed, or failed.
func (s *apiServer) clearSessions(w http.ResponseWriter, r *http.Request) {
	var removed int64
	var err error
	switch scope := strings.TrimSpace(r.URL.Query().Get("scope")); scope {
	case "all":
		removed, err = s.daemon.ClearSessions(r.Context())
	case "completed":
		removed, err = s.daemon.ClearCompleted(r.Context())
	case "failed":
		removed, err = s.daemon.ClearFailed(r.Context())
	default:
		s.writeError(w, http.StatusBadRequest, "scope must be one of all, completed, failed")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, SessionClearResponse{Removed: removed})
}

func (s *apiServer) handleSession(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if rest, ok := strings.CutSuffix(idStr, "/retry"); ok {
		s.retrySession(w, r, rest)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	session, results, err := s.daemon.DescribeSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if session == nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, SessionDetailResponse{
		Session: toSessionView(session),
		Stages:  toStageResultViews(results),
	})
}

// retrySession resets a failed session back to pending.
func (s *apiServer) retrySession(w http.ResponseWriter, r *http.Request, idStr string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	retried, err := s.daemon.RetrySession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !retried {
		s.writeError(w, http.StatusConflict, "session is not in a retryable state (only failed sessions can be retried)")
		return
	}
	s.writeJSON(w, http.StatusOK, SessionRetryResponse{Retried: true})
}

// handleEvents serves the long-poll event feed. A request with follow=1
// blocks until an event past the since cursor arrives or the client goes
// away; without follow it returns immediately with whatever is buffered.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	hub := s.daemon.hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, EventStreamResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	room := strings.TrimSpace(query.Get("room"))
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")

	if tail && since == 0 && !follow {
		evts, next := hub.Tail(room, limit)
		s.writeJSON(w, http.StatusOK, EventStreamResponse{Events: toEventViews(evts), Next: next})
		return
	}

	evts, next, err := hub.Fetch(r.Context(), room, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, EventStreamResponse{Events: toEventViews(evts), Next: next})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
