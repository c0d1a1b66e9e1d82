package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mina/internal/events"
)

// EventLedger persists published events to the event_ledger table so the
// notification history survives daemon restarts. It implements events.Sink.
type EventLedger struct {
	store *Store
}

// NewEventLedger wires a ledger sink backed by the session store.
func NewEventLedger(store *Store) *EventLedger {
	return &EventLedger{store: store}
}

// Append writes one event row. Persistence is best-effort; a write failure
// must never block or fail the publishing path.
func (l *EventLedger) Append(evt events.Event) {
	if l == nil || l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = l.store.execWithRetry(
		ctx,
		`INSERT INTO event_ledger (room, name, session_id, payload, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		evt.Room,
		evt.Name,
		evt.SessionID,
		nullableString(string(evt.Payload)),
		evt.Timestamp.UTC().Format(time.RFC3339Nano),
	)
}

// LedgerEntry is one persisted event row.
type LedgerEntry struct {
	Seq       int64
	Room      string
	Name      string
	SessionID int64
	Payload   json.RawMessage
	CreatedAt time.Time
}

// RecentEvents returns the most recent ledger entries for a room in
// chronological order. An empty room returns entries for all rooms.
func (s *Store) RecentEvents(ctx context.Context, room string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if room == "" {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT seq, room, name, session_id, payload, created_at
             FROM event_ledger ORDER BY seq DESC LIMIT ?`,
			limit,
		)
	} else {
		rows, err = s.db.QueryContext(
			ctx,
			`SELECT seq, room, name, session_id, payload, created_at
             FROM event_ledger WHERE room = ? OR room = ''
             ORDER BY seq DESC LIMIT ?`,
			room,
			limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("read event ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			entry      LedgerEntry
			payloadCol sql.NullString
			createdRaw sql.NullString
		)
		if err := rows.Scan(&entry.Seq, &entry.Room, &entry.Name, &entry.SessionID, &payloadCol, &createdRaw); err != nil {
			return nil, err
		}
		if payloadCol.Valid {
			entry.Payload = json.RawMessage(payloadCol.String)
		}
		if created, err := parseTimeString(createdRaw.String); err == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}
