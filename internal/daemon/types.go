package daemon

import (
	"encoding/json"
	"time"

	"mina/internal/events"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// SessionView is the JSON representation of a session exposed by the API.
type SessionView struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Heartbeat    *time.Time `json:"last_heartbeat,omitempty"`
}

// StageResultView is the JSON representation of one stage outcome.
type StageResultView struct {
	Stage        string          `json:"stage"`
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Attempts     int             `json:"attempts"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// StageHealthView reports readiness of one registered stage handler.
type StageHealthView struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DatabaseHealthView reports session database diagnostics.
type DatabaseHealthView struct {
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	Readable       bool   `json:"readable"`
	TableExists    bool   `json:"table_exists"`
	IntegrityCheck bool   `json:"integrity_check"`
	TotalSessions  int    `json:"total_sessions"`
	Error          string `json:"error,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Running       bool               `json:"running"`
	Pending       int                `json:"pending"`
	Processing    int                `json:"processing"`
	Completed     int                `json:"completed"`
	Failed        int                `json:"failed"`
	Total         int                `json:"total"`
	Stages        []StageHealthView  `json:"stages"`
	Database      DatabaseHealthView `json:"database"`
	SessionDBPath string             `json:"session_db_path"`
	LockFilePath  string             `json:"lock_file_path"`
	LogFilePath   string             `json:"log_file_path"`
	APIBind       string             `json:"api_bind"`
}

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
}

// SessionRetryResponse is the body of POST /api/sessions/{id}/retry.
type SessionRetryResponse struct {
	Retried bool `json:"retried"`
}

// SessionClearResponse is the body of DELETE /api/sessions.
type SessionClearResponse struct {
	Removed int64 `json:"removed"`
}

// SessionListResponse is the body of GET /api/sessions.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SessionDetailResponse is the body of GET /api/sessions/{id}.
type SessionDetailResponse struct {
	Session SessionView       `json:"session"`
	Stages  []StageResultView `json:"stages"`
}

// EventView is the JSON representation of one hub event.
type EventView struct {
	Sequence  uint64          `json:"sequence"`
	Room      string          `json:"room,omitempty"`
	Name      string          `json:"name"`
	SessionID int64           `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventStreamResponse is the body of GET /api/events.
type EventStreamResponse struct {
	Events []EventView `json:"events"`
	Next   uint64      `json:"next"`
}

func toSessionView(session *sessions.Session) SessionView {
	return SessionView{
		ID:           session.ID,
		Token:        session.Token,
		Title:        session.Title,
		Status:       string(session.Status),
		ErrorMessage: session.ErrorMessage,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		Heartbeat:    session.LastHeartbeat,
	}
}

func toStageResultViews(results map[sessions.StageKind]*sessions.StageResult) []StageResultView {
	views := make([]StageResultView, 0, len(sessions.StageKinds()))
	for _, kind := range sessions.StageKinds() {
		result, ok := results[kind]
		if !ok || result == nil {
			views = append(views, StageResultView{
				Stage:  string(kind),
				Status: string(sessions.StageNotStarted),
			})
			continue
		}
		views = append(views, StageResultView{
			Stage:        string(result.Stage),
			Status:       string(result.Status),
			Payload:      result.Payload,
			ErrorKind:    result.ErrorKind,
			ErrorMessage: result.ErrorMessage,
			Attempts:     result.Attempts,
			StartedAt:    result.StartedAt,
			CompletedAt:  result.CompletedAt,
		})
	}
	return views
}

func toDatabaseHealthView(health sessions.DatabaseHealth) DatabaseHealthView {
	return DatabaseHealthView{
		Path:           health.DBPath,
		Exists:         health.DatabaseExists,
		Readable:       health.DatabaseReadable,
		TableExists:    health.TableExists,
		IntegrityCheck: health.IntegrityCheck,
		TotalSessions:  health.TotalSessions,
		Error:          health.Error,
	}
}

func toStageHealthViews(healths []stage.Health) []StageHealthView {
	views := make([]StageHealthView, 0, len(healths))
	for _, health := range healths {
		views = append(views, StageHealthView{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return views
}

func toEventViews(evts []events.Event) []EventView {
	if len(evts) == 0 {
		return nil
	}
	views := make([]EventView, 0, len(evts))
	for _, evt := range evts {
		views = append(views, EventView{
			Sequence:  evt.Sequence,
			Room:      evt.Room,
			Name:      evt.Name,
			SessionID: evt.SessionID,
			Payload:   evt.Payload,
			Timestamp: evt.Timestamp,
		})
	}
	return views
}
