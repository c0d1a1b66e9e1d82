package tasks_test

import (
	"context"
	"encoding/json"
	"testing"

	"mina/internal/logging"
	"mina/internal/sessions"
	"mina/internal/stages/tasks"
	"mina/internal/testsupport"
)

type stubCompleter struct {
	response string
	err      error
}

func (s *stubCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func TestExecuteExtractsTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, store, "Planning", "Alice: I'll send the report by Friday")

	completer := &stubCompleter{response: `{"tasks":[{"description":"Send the report","owner":"Alice","due_hint":"by Friday"},{"description":"  "}]}`}
	extractor := tasks.NewExtractorWithDependencies(cfg, store, logging.NewNop(), completer)

	ctx := context.Background()
	if err := store.MarkStageStarted(ctx, session.ID, sessions.StageTasks); err != nil {
		t.Fatalf("MarkStageStarted: %v", err)
	}
	payload, err := extractor.Execute(ctx, session)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var parsed tasks.Result
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(parsed.Tasks) != 1 {
		t.Fatalf("expected blank task dropped, got %d tasks", len(parsed.Tasks))
	}
	task := parsed.Tasks[0]
	if task.Description != "Send the report" || task.Owner != "Alice" || task.DueHint != "by Friday" {
		t.Fatalf("unexpected task: %#v", task)
	}

	result, err := store.StageResult(ctx, session.ID, sessions.StageTasks)
	if err != nil {
		t.Fatalf("StageResult: %v", err)
	}
	if result == nil || result.Status != sessions.StageReady {
		t.Fatalf("expected persisted ready result, got %#v", result)
	}
}

func TestExecuteAllowsEmptyTaskList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	session := testsupport.NewSession(t, store, "Chatter", "just small talk today")

	completer := &stubCompleter{response: `{"tasks":[]}`}
	extractor := tasks.NewExtractorWithDependencies(cfg, store, logging.NewNop(), completer)

	ctx := context.Background()
	if err := store.MarkStageStarted(ctx, session.ID, sessions.StageTasks); err != nil {
		t.Fatalf("MarkStageStarted: %v", err)
	}
	payload, err := extractor.Execute(ctx, session)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if string(payload) != `{"tasks":[]}` {
		t.Fatalf("expected empty task list payload, got %s", payload)
	}
}

func TestHealthCheckReportsMissingAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	extractor := tasks.NewExtractorWithDependencies(cfg, store, logging.NewNop(), &stubCompleter{})

	if health := extractor.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy stage with api key set, got %#v", health)
	}

	cfg.LLM.APIKey = ""
	if health := extractor.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy stage without llm.api_key")
	}
}
