package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mina/internal/services/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*llm.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := llm.NewClient(
		llm.Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		llm.WithSleeper(func(time.Duration) {}),
	)
	return client, server
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"short\"}"}}]}`))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"summary":"short"}` {
		t.Fatalf("unexpected content: %s", content)
	}
}

func TestCompleteJSONRequiresPrompts(t *testing.T) {
	client := llm.NewClient(llm.Config{APIKey: "key"})
	if _, err := client.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Fatal("expected error for empty system prompt")
	}
	if _, err := client.CompleteJSON(context.Background(), "system", ""); err == nil {
		t.Fatal("expected error for empty user prompt")
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"ok":true}` {
		t.Fatalf("unexpected content: %s", content)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCompleteJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestCompleteJSONHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var slept []time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()
	client := llm.NewClient(
		llm.Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		llm.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Fatalf("expected one 2s sleep from Retry-After, got %v", slept)
	}
}

func TestIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := llm.NewClient(
		llm.Config{APIKey: "key", BaseURL: server.URL, Model: "m"},
		llm.WithRetryMaxAttempts(1),
	)

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if !llm.IsTransient(err) {
		t.Fatalf("expected 429 to classify as transient, got %v", err)
	}
	if llm.IsTransient(context.Canceled) {
		t.Fatal("expected context cancellation to be non-transient")
	}
}

func TestDecodeLLMJSONStripsCodeFences(t *testing.T) {
	var target struct {
		Summary string `json:"summary"`
	}
	payload := "```json\n{\"summary\":\"fenced\"}\n```"
	if err := llm.DecodeLLMJSON(payload, &target); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if target.Summary != "fenced" {
		t.Fatalf("unexpected decode result: %#v", target)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var target struct {
		OK bool `json:"ok"`
	}
	payload := "Here is the result you asked for: {\"ok\": true} hope that helps!"
	if err := llm.DecodeLLMJSON(payload, &target); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !target.OK {
		t.Fatalf("unexpected decode result: %#v", target)
	}
}
