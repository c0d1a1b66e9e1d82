package sessions

import (
	"context"
	"fmt"
	"time"
)

// BeginProcessing atomically claims a pending session for processing.
// It returns false when the session is no longer pending, which closes
// the race between two runners picking up the same session.
func (s *Store) BeginProcessing(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET status = ?, error_message = NULL, updated_at = ?, last_heartbeat = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("begin processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted transitions a session to the completed terminal state.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET status = ?, error_message = NULL, updated_at = ?, last_heartbeat = NULL
         WHERE id = ?`,
		StatusCompleted,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed transitions a session to the failed terminal state with a reason.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET status = ?, error_message = ?, updated_at = ?, last_heartbeat = NULL
         WHERE id = ?`,
		StatusFailed,
		nullableString(message),
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RetryFailed resets a failed session back to pending so the processing
// loop picks it up again. Stage results from the previous run are cleared.
func (s *Store) RetryFailed(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions
         SET status = ?, error_message = NULL, updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusPending,
		now,
		id,
		StatusFailed,
	)
	if err != nil {
		return false, fmt.Errorf("retry failed session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := s.ResetStageResults(ctx, id); err != nil {
		return true, err
	}
	return true, nil
}

// UpdateHeartbeat records liveness for a session currently being processed.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing resets processing sessions whose heartbeat is older
// than the cutoff back to pending. It returns the identifiers of reclaimed
// sessions so callers can log them.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM sessions
         WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("find stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range ids {
		_, err := s.execWithRetry(
			ctx,
			`UPDATE sessions
             SET status = ?, error_message = NULL, updated_at = ?, last_heartbeat = NULL
             WHERE id = ? AND status = ?`,
			StatusPending,
			now,
			id,
			StatusProcessing,
		)
		if err != nil {
			return ids, fmt.Errorf("reclaim session %d: %w", id, err)
		}
	}
	return ids, nil
}
