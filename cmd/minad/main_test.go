package main

import (
	"testing"

	"mina/internal/logging"
	"mina/internal/sessions"
	"mina/internal/testsupport"
)

func TestBuildStageHandlersCoversAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	handlers := buildStageHandlers(cfg, store, logging.NewNop())
	if len(handlers) != len(sessions.StageKinds()) {
		t.Fatalf("expected %d handlers, got %d", len(sessions.StageKinds()), len(handlers))
	}
	seen := make(map[sessions.StageKind]bool)
	for _, handler := range handlers {
		if seen[handler.Kind()] {
			t.Fatalf("duplicate handler for stage %s", handler.Kind())
		}
		seen[handler.Kind()] = true
	}
	for _, kind := range sessions.StageKinds() {
		if !seen[kind] {
			t.Fatalf("missing handler for stage %s", kind)
		}
	}
}

func TestBuildStageHandlersNilConfig(t *testing.T) {
	if handlers := buildStageHandlers(nil, nil, logging.NewNop()); handlers != nil {
		t.Fatalf("expected nil handlers, got %d", len(handlers))
	}
}
