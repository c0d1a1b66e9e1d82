package sessions_test

import (
	"context"
	"encoding/json"
	"testing"

	"mina/internal/events"
	"mina/internal/sessions"
	"mina/internal/testsupport"
)

func TestEventLedgerPersistsPublishedEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	hub := events.NewHub(16)
	hub.AddSink(sessions.NewEventLedger(store))

	hub.Publish(events.Event{
		Room:      "session-1",
		Name:      "summary_ready",
		SessionID: 1,
		Payload:   json.RawMessage(`{"summary":"short"}`),
	})
	hub.Publish(events.Event{Name: events.DashboardRefresh})

	entries, err := store.RecentEvents(context.Background(), "session-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected room event plus broadcast, got %d entries", len(entries))
	}
	if entries[0].Name != "summary_ready" {
		t.Fatalf("expected summary_ready first, got %s", entries[0].Name)
	}
	if entries[0].SessionID != 1 {
		t.Fatalf("expected session id 1, got %d", entries[0].SessionID)
	}
	if len(entries[0].Payload) == 0 {
		t.Fatal("expected payload persisted")
	}
	if entries[1].Name != events.DashboardRefresh {
		t.Fatalf("expected broadcast second, got %s", entries[1].Name)
	}

	other, err := store.RecentEvents(context.Background(), "session-2", 10)
	if err != nil {
		t.Fatalf("RecentEvents other room: %v", err)
	}
	if len(other) != 1 || other[0].Name != events.DashboardRefresh {
		t.Fatalf("expected only the broadcast for other rooms, got %#v", other)
	}
}
