package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mina/internal/config"
	"mina/internal/notifications"
)

func TestNewServiceReturnsNoopWithoutTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop TestNotification: %v", err)
	}
}

func TestNotifySessionCompletedSendsNtfyRequest(t *testing.T) {
	var gotTitle, gotBody, gotTags string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTitle = r.Header.Get("Title")
		gotTags = r.Header.Get("Tags")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifySessionCompleted(context.Background(), "Weekly Sync", 3, 4); err != nil {
		t.Fatalf("NotifySessionCompleted: %v", err)
	}
	if gotTitle != "Mina - Session Processed" {
		t.Fatalf("unexpected title header: %q", gotTitle)
	}
	if !strings.Contains(gotBody, "partial, 3/4") || !strings.Contains(gotBody, "Weekly Sync") {
		t.Fatalf("unexpected body: %q", gotBody)
	}
	if !strings.Contains(gotTags, "completed") {
		t.Fatalf("unexpected tags: %q", gotTags)
	}
}

func TestNotifySessionFailedSurfacesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	err := svc.NotifySessionFailed(context.Background(), "Weekly Sync", "insufficient successful stages")
	if err == nil {
		t.Fatal("expected error from 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
