package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const stageResultColumns = "id, session_id, stage, status, payload, error_kind, error_message, attempts, started_at, completed_at"

// MarkStageStarted records that a stage began executing, incrementing the
// attempt counter. The row is created on first call for the stage.
func (s *Store) MarkStageStarted(ctx context.Context, sessionID int64, stage StageKind) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO stage_results (session_id, stage, status, attempts, started_at)
         VALUES (?, ?, ?, 1, ?)
         ON CONFLICT(session_id, stage) DO UPDATE SET
             status = excluded.status,
             attempts = stage_results.attempts + 1,
             started_at = excluded.started_at,
             error_kind = NULL,
             error_message = NULL,
             completed_at = NULL`,
		sessionID,
		stage,
		StageStarted,
		now,
	)
	if err != nil {
		return fmt.Errorf("record stage start: %w", err)
	}
	return nil
}

// MarkStageReady records a successful stage result payload.
func (s *Store) MarkStageReady(ctx context.Context, sessionID int64, stage StageKind, payload json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE stage_results
         SET status = ?, payload = ?, error_kind = NULL, error_message = NULL, completed_at = ?
         WHERE session_id = ? AND stage = ?`,
		StageReady,
		nullableString(string(payload)),
		now,
		sessionID,
		stage,
	)
	if err != nil {
		return fmt.Errorf("record stage result: %w", err)
	}
	return nil
}

// MarkStageFailed records a terminal stage failure with its error classification.
func (s *Store) MarkStageFailed(ctx context.Context, sessionID int64, stage StageKind, kind, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE stage_results
         SET status = ?, payload = NULL, error_kind = ?, error_message = ?, completed_at = ?
         WHERE session_id = ? AND stage = ?`,
		StageFailed,
		nullableString(kind),
		nullableString(message),
		now,
		sessionID,
		stage,
	)
	if err != nil {
		return fmt.Errorf("record stage failure: %w", err)
	}
	return nil
}

// StageResults returns the stage rows for a session keyed by stage kind.
func (s *Store) StageResults(ctx context.Context, sessionID int64) (map[StageKind]*StageResult, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+stageResultColumns+` FROM stage_results WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage results: %w", err)
	}
	defer rows.Close()

	results := make(map[StageKind]*StageResult)
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return nil, err
		}
		results[result.Stage] = result
	}
	return results, rows.Err()
}

// StageResult returns a single stage row for a session, or nil when absent.
func (s *Store) StageResult(ctx context.Context, sessionID int64, stage StageKind) (*StageResult, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+stageResultColumns+` FROM stage_results WHERE session_id = ? AND stage = ?`,
		sessionID,
		stage,
	)
	result, err := scanStageResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stage result: %w", err)
	}
	return result, nil
}

// ResetStageResults removes all stage rows for a session so a retry run
// starts from a clean slate.
func (s *Store) ResetStageResults(ctx context.Context, sessionID int64) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM stage_results WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("reset stage results: %w", err)
	}
	return nil
}

func scanStageResult(scanner interface{ Scan(dest ...any) error }) (*StageResult, error) {
	var (
		id           int64
		sessionID    int64
		stageStr     string
		statusStr    string
		payload      sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		attempts     int
		startedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&stageStr,
		&statusStr,
		&payload,
		&errorKind,
		&errorMessage,
		&attempts,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	result := &StageResult{
		ID:           id,
		SessionID:    sessionID,
		Stage:        StageKind(stageStr),
		Status:       StageStatus(statusStr),
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
		Attempts:     attempts,
	}
	if payload.Valid {
		result.Payload = json.RawMessage(payload.String)
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			result.StartedAt = &started
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			result.CompletedAt = &completed
		}
	}
	return result, nil
}
