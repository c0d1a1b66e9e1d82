package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mina/internal/config"
	"mina/internal/sessions"
)

func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[llm]
api_key = "test"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return path, cfg
}

func runCommand(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append(args, "--config", configPath))
	err := cmd.Execute()
	return buf.String(), err
}

func TestSessionListEmpty(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	out, err := runCommand(t, configPath, "session", "list")
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if !strings.Contains(out, "No sessions found") {
		t.Fatalf("expected empty message, got %q", out)
	}
}

func TestSessionListRendersTable(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.NewSession(context.Background(), "Weekly Sync", "Alice: hello"); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := runCommand(t, configPath, "session", "list")
	if err != nil {
		t.Fatalf("session list: %v", err)
	}
	if !strings.Contains(out, "Weekly Sync") || !strings.Contains(out, "pending") {
		t.Fatalf("expected table with session, got %q", out)
	}
}

func TestSessionShowUnknownFails(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	_, err := runCommand(t, configPath, "session", "show", "42")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestSessionShowRendersStages(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	session, err := store.NewSession(context.Background(), "Detail", "transcript")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.MarkStageStarted(context.Background(), session.ID, sessions.StageAnalytics); err != nil {
		t.Fatalf("MarkStageStarted: %v", err)
	}
	if err := store.MarkStageReady(context.Background(), session.ID, sessions.StageAnalytics, []byte(`{"word_count":2}`)); err != nil {
		t.Fatalf("MarkStageReady: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := runCommand(t, configPath, "session", "show", fmt.Sprintf("%d", session.ID), "--payloads")
	if err != nil {
		t.Fatalf("session show: %v", err)
	}
	if !strings.Contains(out, "analytics") || !strings.Contains(out, "ready") {
		t.Fatalf("expected analytics ready row, got %q", out)
	}
	if !strings.Contains(out, `"word_count":2`) {
		t.Fatalf("expected payload output, got %q", out)
	}
	if !strings.Contains(out, "not_started") {
		t.Fatalf("expected placeholder rows for untouched stages, got %q", out)
	}
}

func TestSessionRetryReportsNonRetryable(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	session, err := store.NewSession(context.Background(), "Pending", "transcript")
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := runCommand(t, configPath, "session", "retry", fmt.Sprintf("%d", session.ID))
	if err != nil {
		t.Fatalf("session retry: %v", err)
	}
	if !strings.Contains(out, "not in a retryable state") {
		t.Fatalf("expected non-retryable message, got %q", out)
	}
}

func TestSessionClearRequiresScopeFlag(t *testing.T) {
	configPath, _ := writeTestConfig(t)

	_, err := runCommand(t, configPath, "session", "clear")
	if err == nil || !strings.Contains(err.Error(), "exactly one of") {
		t.Fatalf("expected flag validation error, got %v", err)
	}
}

func TestSessionAddQueuesTranscript(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	transcriptPath := filepath.Join(t.TempDir(), "standup.txt")
	if err := os.WriteFile(transcriptPath, []byte("Alice: shipping today"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	out, err := runCommand(t, configPath, "session", "add", "--title", "Standup", "--file", transcriptPath)
	if err != nil {
		t.Fatalf("session add: %v", err)
	}
	if !strings.Contains(out, "queued") {
		t.Fatalf("expected queued confirmation, got %q", out)
	}

	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	list, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Standup" {
		t.Fatalf("expected one queued session, got %#v", list)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncate result %q", got)
	}
	if got := truncate("a long value to shorten", 10); got != "a long ..." {
		t.Fatalf("unexpected truncate result %q", got)
	}
}

func TestParsePositiveIDs(t *testing.T) {
	ids, err := parsePositiveIDs([]string{"1", " 2 "})
	if err != nil || len(ids) != 2 || ids[1] != 2 {
		t.Fatalf("unexpected parse result %v %v", ids, err)
	}
	if _, err := parsePositiveIDs([]string{"0"}); err == nil {
		t.Fatal("expected error for non-positive id")
	}
	if _, err := parsePositiveIDs([]string{"abc"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
