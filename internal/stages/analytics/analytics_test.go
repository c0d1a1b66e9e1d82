package analytics_test

import (
	"context"
	"encoding/json"
	"testing"

	"mina/internal/logging"
	"mina/internal/sessions"
	"mina/internal/stages/analytics"
	"mina/internal/testsupport"
)

func TestExecutePersistsMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, store, "Metrics", "Alice: the quarterly numbers are up")

	analyzer := analytics.NewAnalyzer(cfg, store, logging.NewNop())

	ctx := context.Background()
	if err := store.MarkStageStarted(ctx, session.ID, sessions.StageAnalytics); err != nil {
		t.Fatalf("MarkStageStarted: %v", err)
	}
	payload, err := analyzer.Execute(ctx, session)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var parsed analytics.Result
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if parsed.WordCount != 5 || parsed.SpeakerCount != 1 {
		t.Fatalf("unexpected metrics: %#v", parsed)
	}

	result, err := store.StageResult(ctx, session.ID, sessions.StageAnalytics)
	if err != nil {
		t.Fatalf("StageResult: %v", err)
	}
	if result == nil || result.Status != sessions.StageReady {
		t.Fatalf("expected persisted ready result, got %#v", result)
	}
}
