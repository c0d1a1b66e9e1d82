package sessions

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the processing lifecycle of a session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is a terminal run outcome.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageKind identifies one of the four enrichment stages.
type StageKind string

const (
	StageRefinement StageKind = "refinement"
	StageAnalytics  StageKind = "analytics"
	StageTasks      StageKind = "tasks"
	StageSummary    StageKind = "summary"
)

// StageKinds returns the stages in their canonical display order.
func StageKinds() []StageKind {
	return []StageKind{StageRefinement, StageAnalytics, StageTasks, StageSummary}
}

// ParseStageKind converts a string into a known StageKind.
func ParseStageKind(value string) (StageKind, bool) {
	normalized := StageKind(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StageRefinement, StageAnalytics, StageTasks, StageSummary:
		return normalized, true
	}
	return "", false
}

// StageStatus represents the lifecycle of a single stage within a run.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageStarted    StageStatus = "started"
	StageReady      StageStatus = "ready"
	StageFailed     StageStatus = "failed"
)

// IsTerminal reports whether a stage status is terminal.
func (s StageStatus) IsTerminal() bool {
	return s == StageReady || s == StageFailed
}

// Session represents a completed transcription session awaiting (or having
// finished) post-processing, persisted in SQLite.
type Session struct {
	ID            int64
	Token         string
	Title         string
	Transcript    string
	Status        Status
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// Room returns the event room scoped to this session.
func (s *Session) Room() string {
	return fmt.Sprintf("session-%d", s.ID)
}

// IsProcessing returns true when a run is in flight for the session.
func (s *Session) IsProcessing() bool {
	return s.Status == StatusProcessing
}

// StageResult captures the outcome of one enrichment stage for one session.
type StageResult struct {
	ID           int64
	SessionID    int64
	Stage        StageKind
	Status       StageStatus
	Payload      json.RawMessage
	ErrorKind    string
	ErrorMessage string
	Attempts     int
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// HealthSummary describes aggregated session counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the session database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalSessions    int
	Error            string
}
