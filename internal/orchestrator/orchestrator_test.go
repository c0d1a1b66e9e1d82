package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mina/internal/config"
	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/notifications"
	"mina/internal/orchestrator"
	"mina/internal/services"
	"mina/internal/sessions"
	"mina/internal/stage"
	"mina/internal/testsupport"
)

type stubHandler struct {
	kind    sessions.StageKind
	store   *sessions.Store
	execute func(ctx context.Context, session *sessions.Session) (json.RawMessage, error)
	calls   atomic.Int32
}

func (s *stubHandler) Kind() sessions.StageKind { return s.kind }

func (s *stubHandler) Execute(ctx context.Context, session *sessions.Session) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.execute != nil {
		return s.execute(ctx, session)
	}
	payload := json.RawMessage(fmt.Sprintf(`{"stage":%q}`, s.kind))
	if s.store != nil {
		if err := s.store.MarkStageReady(ctx, session.ID, s.kind, payload); err != nil {
			return nil, services.Wrap(services.ErrExecution, string(s.kind), "persist result", "", err)
		}
	}
	return payload, nil
}

func (s *stubHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(string(s.kind))
}

func succeedingHandlers(store *sessions.Store) []*stubHandler {
	handlers := make([]*stubHandler, 0, 4)
	for _, kind := range sessions.StageKinds() {
		handlers = append(handlers, &stubHandler{kind: kind, store: store})
	}
	return handlers
}

func handlerFor(handlers []*stubHandler, kind sessions.StageKind) *stubHandler {
	for _, handler := range handlers {
		if handler.kind == kind {
			return handler
		}
	}
	return nil
}

func newOrchestrator(t *testing.T, cfg *config.Config, store *sessions.Store, hub *events.Hub, handlers []*stubHandler, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()
	stageHandlers := make([]stage.Handler, 0, len(handlers))
	for _, handler := range handlers {
		stageHandlers = append(stageHandlers, handler)
	}
	base := []orchestrator.Option{
		orchestrator.WithNotifier(notifications.NewNop()),
		orchestrator.WithSleeper(func(time.Duration) {}),
	}
	return orchestrator.New(cfg, store, hub, logging.NewNop(), stageHandlers, append(base, opts...)...)
}

func roomEvents(t *testing.T, hub *events.Hub, room string) []events.Event {
	t.Helper()
	got, _, err := hub.Fetch(context.Background(), room, 0, 100, false)
	if err != nil {
		t.Fatalf("Fetch events: %v", err)
	}
	return got
}

func eventsNamed(evts []events.Event, name string) []events.Event {
	var matched []events.Event
	for _, evt := range evts {
		if evt.Name == name {
			matched = append(matched, evt)
		}
	}
	return matched
}

func TestRunRevealsWhenAllStagesSucceed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "All Good", "the quarterly numbers are up")
	handlers := succeedingHandlers(store)
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Revealed || outcome.ReadyCount != 4 {
		t.Fatalf("expected full reveal, got %#v", outcome)
	}

	updated, err := store.GetByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != sessions.StatusCompleted {
		t.Fatalf("expected completed session, got %s", updated.Status)
	}

	evts := roomEvents(t, hub, session.Room())
	for _, kind := range sessions.StageKinds() {
		if len(eventsNamed(evts, events.StageStarted(string(kind)))) != 1 {
			t.Fatalf("expected one %s_started event", kind)
		}
		if len(eventsNamed(evts, events.StageReady(string(kind)))) != 1 {
			t.Fatalf("expected one %s_ready event", kind)
		}
	}
	if len(eventsNamed(evts, events.PostTranscriptionReveal)) != 1 {
		t.Fatal("expected one reveal event")
	}
	if len(eventsNamed(evts, events.DashboardRefresh)) != 1 {
		t.Fatal("expected dashboard refresh broadcast")
	}

	results, err := store.StageResults(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("StageResults: %v", err)
	}
	for _, kind := range sessions.StageKinds() {
		if results[kind] == nil || results[kind].Status != sessions.StageReady {
			t.Fatalf("expected %s persisted ready by orchestrator run, got %#v", kind, results[kind])
		}
	}
}

func TestStageFailureDoesNotAbortSiblings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "One Bad Stage", "transcript")
	handlers := succeedingHandlers(store)
	handlerFor(handlers, sessions.StageTasks).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		return nil, services.Wrap(services.ErrExecution, "tasks", "execute", "model refused", nil)
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Revealed || outcome.ReadyCount != 3 {
		t.Fatalf("expected 3/4 reveal, got %#v", outcome)
	}

	for _, handler := range handlers {
		if handler.calls.Load() == 0 {
			t.Fatalf("expected stage %s to run despite sibling failure", handler.kind)
		}
	}

	evts := roomEvents(t, hub, session.Room())
	if len(eventsNamed(evts, events.StageFailed(string(sessions.StageTasks)))) != 1 {
		t.Fatal("expected tasks_failed event")
	}
	if len(eventsNamed(evts, events.PostTranscriptionReveal)) != 1 {
		t.Fatal("expected reveal despite one failed stage")
	}
}

func TestDuplicateRunRaceExecutesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Race", "transcript")
	handlers := succeedingHandlers(store)
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(slot int) {
			defer wg.Done()
			_, errs[slot] = orch.Run(context.Background(), session.ID)
		}(i)
	}
	wg.Wait()

	var skipped, succeeded int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, orchestrator.ErrAlreadyProcessing):
			skipped++
		default:
			t.Fatalf("unexpected run error: %v", err)
		}
	}
	if succeeded != 1 || skipped != 1 {
		t.Fatalf("expected exactly one pipeline execution, got %d successes and %d skips", succeeded, skipped)
	}

	var totalCalls int32
	for _, handler := range handlers {
		totalCalls += handler.calls.Load()
	}
	if totalCalls != 4 {
		t.Fatalf("expected 4 stage invocations total, got %d", totalCalls)
	}

	evts := roomEvents(t, hub, session.Room())
	if len(eventsNamed(evts, events.PostTranscriptionReveal)) != 1 {
		t.Fatal("expected exactly one reveal event")
	}
}

func TestRunOnFinishedSessionIsNoOp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Done", "transcript")
	if err := store.MarkCompleted(context.Background(), session.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	handlers := succeedingHandlers(store)
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	_, err := orch.Run(context.Background(), session.ID)
	if !errors.Is(err, orchestrator.ErrAlreadyProcessing) {
		t.Fatalf("expected ErrAlreadyProcessing, got %v", err)
	}
	for _, handler := range handlers {
		if handler.calls.Load() != 0 {
			t.Fatalf("expected no stage invocations, stage %s ran", handler.kind)
		}
	}
}

func TestStageTimeoutBoundsTheRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Hang", "transcript")

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	handlers := succeedingHandlers(store)
	handlerFor(handlers, sessions.StageSummary).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		// Ignores cancellation entirely; the orchestrator must abandon it.
		<-release
		return nil, errors.New("never reached in time")
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers, orchestrator.WithStageTimeout(100*time.Millisecond))

	start := time.Now()
	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run was not bounded by stage timeout, took %s", elapsed)
	}
	if !outcome.Revealed || outcome.ReadyCount != 3 {
		t.Fatalf("expected 3/4 reveal, got %#v", outcome)
	}

	summaryOutcome := outcome.Stages[sessions.StageSummary]
	if summaryOutcome.Ready() {
		t.Fatal("expected summary stage to fail")
	}
	if summaryOutcome.Kind != "timeout_error" {
		t.Fatalf("expected timeout_error, got %q", summaryOutcome.Kind)
	}

	result, err := store.StageResult(context.Background(), session.ID, sessions.StageSummary)
	if err != nil {
		t.Fatalf("StageResult: %v", err)
	}
	if result == nil || result.Status != sessions.StageFailed || result.ErrorKind != "timeout_error" {
		t.Fatalf("expected persisted timeout failure, got %#v", result)
	}
}

func TestThresholdBoundaries(t *testing.T) {
	t.Run("three of four reveals", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)
		hub := events.NewHub(64)
		session := testsupport.NewSession(t, store, "Boundary High", "transcript")
		handlers := succeedingHandlers(store)
		handlerFor(handlers, sessions.StageSummary).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
			return nil, services.Wrap(services.ErrExecution, "summary", "execute", "boom", nil)
		}
		orch := newOrchestrator(t, cfg, store, hub, handlers)

		outcome, err := orch.Run(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !outcome.Revealed {
			t.Fatal("expected reveal with 3/4 successes")
		}

		updated, _ := store.GetByID(context.Background(), session.ID)
		if updated.Status != sessions.StatusCompleted {
			t.Fatalf("expected completed, got %s", updated.Status)
		}
	})

	t.Run("two of four fails", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)
		hub := events.NewHub(64)
		session := testsupport.NewSession(t, store, "Boundary Low", "transcript")
		handlers := succeedingHandlers(store)
		fail := func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
			return nil, services.Wrap(services.ErrExecution, "stage", "execute", "boom", nil)
		}
		handlerFor(handlers, sessions.StageSummary).execute = fail
		handlerFor(handlers, sessions.StageTasks).execute = fail
		orch := newOrchestrator(t, cfg, store, hub, handlers)

		outcome, err := orch.Run(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if outcome.Revealed {
			t.Fatal("expected failure signal with 2/4 successes")
		}

		evts := roomEvents(t, hub, session.Room())
		if len(eventsNamed(evts, events.PostTranscriptionFailed)) != 1 {
			t.Fatal("expected post_transcription_failed event")
		}
		if len(eventsNamed(evts, events.PostTranscriptionReveal)) != 0 {
			t.Fatal("expected no reveal event")
		}
		if len(eventsNamed(evts, events.DashboardRefresh)) != 0 {
			t.Fatal("expected no dashboard refresh on failure")
		}

		updated, _ := store.GetByID(context.Background(), session.ID)
		if updated.Status != sessions.StatusFailed {
			t.Fatalf("expected failed, got %s", updated.Status)
		}
		if !strings.Contains(updated.ErrorMessage, "insufficient_success") {
			t.Fatalf("expected insufficient_success reason, got %q", updated.ErrorMessage)
		}

		failedEvt := eventsNamed(evts, events.PostTranscriptionFailed)[0]
		var parsed struct {
			SessionID int64 `json:"session_id"`
			Failures  []struct {
				Stage string `json:"stage"`
				Kind  string `json:"kind"`
			} `json:"failures"`
		}
		if err := json.Unmarshal(failedEvt.Payload, &parsed); err != nil {
			t.Fatalf("unmarshal failure payload: %v", err)
		}
		if parsed.SessionID != session.ID || len(parsed.Failures) != 2 {
			t.Fatalf("unexpected failure payload: %#v", parsed)
		}
	})

	t.Run("threshold of four requires every stage", func(t *testing.T) {
		cfg := testsupport.NewConfig(t, testsupport.WithSuccessThreshold(4))
		store := testsupport.MustOpenStore(t, cfg)
		hub := events.NewHub(64)
		session := testsupport.NewSession(t, store, "Boundary Strict", "transcript")
		handlers := succeedingHandlers(store)
		handlerFor(handlers, sessions.StageSummary).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
			return nil, services.Wrap(services.ErrExecution, "summary", "execute", "boom", nil)
		}
		orch := newOrchestrator(t, cfg, store, hub, handlers)

		outcome, err := orch.Run(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if outcome.Revealed {
			t.Fatal("expected failure with 3/4 successes at threshold 4")
		}

		updated, _ := store.GetByID(context.Background(), session.ID)
		if updated.Status != sessions.StatusFailed {
			t.Fatalf("expected failed, got %s", updated.Status)
		}
	})
}

func TestIntraStageEventOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Ordering", "transcript")
	handlers := succeedingHandlers(store)
	handlerFor(handlers, sessions.StageAnalytics).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		return nil, services.Wrap(services.ErrExecution, "analytics", "execute", "boom", nil)
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	if _, err := orch.Run(context.Background(), session.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evts := roomEvents(t, hub, session.Room())
	for _, kind := range sessions.StageKinds() {
		name := string(kind)
		started := eventsNamed(evts, events.StageStarted(name))
		if len(started) != 1 {
			t.Fatalf("expected one %s_started, got %d", name, len(started))
		}
		terminalName := events.StageReady(name)
		if kind == sessions.StageAnalytics {
			terminalName = events.StageFailed(name)
		}
		terminal := eventsNamed(evts, terminalName)
		if len(terminal) != 1 {
			t.Fatalf("expected one %s, got %d", terminalName, len(terminal))
		}
		if started[0].Sequence >= terminal[0].Sequence {
			t.Fatalf("%s: started seq %d not before terminal seq %d", name, started[0].Sequence, terminal[0].Sequence)
		}
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Flaky", "transcript")
	handlers := succeedingHandlers(store)
	flaky := handlerFor(handlers, sessions.StageRefinement)
	var attempts atomic.Int32
	flaky.execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		if attempts.Add(1) < 3 {
			return nil, services.Wrap(services.ErrTransient, "refinement", "execute", "rate limited", nil)
		}
		return json.RawMessage(`{"refined_text":"ok","change_count":0}`), nil
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	stageOutcome := outcome.Stages[sessions.StageRefinement]
	if !stageOutcome.Ready() || stageOutcome.Attempts != 3 {
		t.Fatalf("expected ready after 3 attempts, got %#v", stageOutcome)
	}

	result, err := store.StageResult(context.Background(), session.ID, sessions.StageRefinement)
	if err != nil {
		t.Fatalf("StageResult: %v", err)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected persisted attempts 3, got %d", result.Attempts)
	}

	evts := roomEvents(t, hub, session.Room())
	if got := len(eventsNamed(evts, events.StageStarted("refinement"))); got != 1 {
		t.Fatalf("expected a single refinement_started despite retries, got %d", got)
	}
}

func TestExhaustedRetriesFailStage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRetryAttempts(2))
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Persistent Flake", "transcript")
	handlers := succeedingHandlers(store)
	flaky := handlerFor(handlers, sessions.StageTasks)
	flaky.execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		return nil, services.Wrap(services.ErrTransient, "tasks", "execute", "rate limited", nil)
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if flaky.calls.Load() != int32(cfg.Orchestrator.RetryAttempts) {
		t.Fatalf("expected %d attempts, got %d", cfg.Orchestrator.RetryAttempts, flaky.calls.Load())
	}
	stageOutcome := outcome.Stages[sessions.StageTasks]
	if stageOutcome.Ready() || stageOutcome.Kind != "transient_error" {
		t.Fatalf("expected transient failure after exhausted retries, got %#v", stageOutcome)
	}
	if !outcome.Revealed {
		t.Fatal("expected 3/4 reveal despite exhausted stage")
	}
}

func TestPanickingStageIsContained(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Panic", "transcript")
	handlers := succeedingHandlers(store)
	handlerFor(handlers, sessions.StageAnalytics).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		panic("analytics exploded")
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Revealed || outcome.ReadyCount != 3 {
		t.Fatalf("expected reveal despite panic, got %#v", outcome)
	}
	analyticsOutcome := outcome.Stages[sessions.StageAnalytics]
	if analyticsOutcome.Ready() || analyticsOutcome.Kind != "execution_error" {
		t.Fatalf("expected contained execution failure, got %#v", analyticsOutcome)
	}

	updated, _ := store.GetByID(context.Background(), session.ID)
	if updated.Status != sessions.StatusCompleted {
		t.Fatalf("expected completed session, got %s", updated.Status)
	}
}

func TestQuarterlyNumbersScenario(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStageTimeout(1))
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Quarterly Review", "the quarterly numbers are up")

	handlers := succeedingHandlers(store)
	handlerFor(handlers, sessions.StageSummary).execute = func(ctx context.Context, _ *sessions.Session) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	orch := newOrchestrator(t, cfg, store, hub, handlers)

	outcome, err := orch.Run(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.Revealed || outcome.ReadyCount != 3 {
		t.Fatalf("expected 3/4 reveal, got %#v", outcome)
	}

	evts := roomEvents(t, hub, session.Room())
	readyCount := 0
	for _, kind := range []sessions.StageKind{sessions.StageRefinement, sessions.StageAnalytics, sessions.StageTasks} {
		readyCount += len(eventsNamed(evts, events.StageReady(string(kind))))
	}
	if readyCount != 3 {
		t.Fatalf("expected three _ready events, got %d", readyCount)
	}
	if len(eventsNamed(evts, events.StageFailed("summary"))) != 1 {
		t.Fatal("expected summary_failed event")
	}

	reveals := eventsNamed(evts, events.PostTranscriptionReveal)
	if len(reveals) != 1 {
		t.Fatal("expected one reveal event")
	}
	var parsed struct {
		SessionID int64                      `json:"session_id"`
		Results   map[string]json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(reveals[0].Payload, &parsed); err != nil {
		t.Fatalf("unmarshal reveal payload: %v", err)
	}
	if parsed.SessionID != session.ID {
		t.Fatalf("expected session id %d in reveal, got %d", session.ID, parsed.SessionID)
	}
	for _, kind := range []string{"refinement", "analytics", "tasks"} {
		if _, ok := parsed.Results[kind]; !ok {
			t.Fatalf("expected %s result in reveal payload", kind)
		}
	}
	if _, ok := parsed.Results["summary"]; ok {
		t.Fatal("expected no summary result in reveal payload")
	}

	summaryOutcome := outcome.Stages[sessions.StageSummary]
	if summaryOutcome.Kind != "timeout_error" {
		t.Fatalf("expected timeout_error for summary, got %q", summaryOutcome.Kind)
	}

	updated, _ := store.GetByID(context.Background(), session.ID)
	if updated.Status != sessions.StatusCompleted {
		t.Fatalf("expected completed session, got %s", updated.Status)
	}
}

func TestManagerProcessesPendingSessions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	session := testsupport.NewSession(t, store, "Loop", "transcript")
	handlers := succeedingHandlers(store)
	orch := newOrchestrator(t, cfg, store, hub, handlers)
	manager := orchestrator.NewManager(cfg, store, orch, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		updated, err := store.GetByID(context.Background(), session.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Status == sessions.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never completed, status %s", updated.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	evts := roomEvents(t, hub, session.Room())
	if len(eventsNamed(evts, events.PostTranscriptionReveal)) != 1 {
		t.Fatal("expected reveal from manager-driven run")
	}
}

type recordingNotifier struct {
	errorCalls atomic.Int32
}

func (r *recordingNotifier) NotifySessionCompleted(context.Context, string, int, int) error { return nil }
func (r *recordingNotifier) NotifySessionFailed(context.Context, string, string) error     { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error                        { return nil }

func (r *recordingNotifier) NotifyError(context.Context, error, string) error {
	r.errorCalls.Add(1)
	return nil
}

func TestManagerNotifiesOnLoopErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(64)
	notifier := &recordingNotifier{}
	orch := newOrchestrator(t, cfg, store, hub, succeedingHandlers(store), orchestrator.WithNotifier(notifier))
	manager := orchestrator.NewManager(cfg, store, orch, logging.NewNop())

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for notifier.errorCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected an error notification from the loop")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if manager.LastError() == nil {
		t.Fatal("expected the loop error to be recorded")
	}
}
