package testsupport

import (
	"context"
	"testing"

	"mina/internal/config"
	"mina/internal/sessions"
)

// MustOpenStore opens a sessions.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sessions.Store {
	t.Helper()

	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("sessions.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates a session for tests using the provided store.
func NewSession(t testing.TB, store *sessions.Store, title, transcript string) *sessions.Session {
	t.Helper()

	session, err := store.NewSession(context.Background(), title, transcript)
	if err != nil {
		t.Fatalf("store.NewSession: %v", err)
	}
	return session
}
