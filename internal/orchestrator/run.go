package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/services"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// Run processes one session: it atomically claims the session, executes
// the four stages concurrently, applies the success-threshold policy, and
// leaves the session in a terminal status on every exit path.
//
// A second Run for a session that is already processing (or finished)
// returns ErrAlreadyProcessing without invoking any stage.
func (o *Orchestrator) Run(ctx context.Context, sessionID int64) (*Outcome, error) {
	ctx = services.WithSessionID(ctx, sessionID)
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, o.logger)

	session, err := o.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, services.Wrap(services.ErrNotFound, "orchestrator", "load session", fmt.Sprintf("session %d does not exist", sessionID), nil)
	}

	claimed, err := o.store.BeginProcessing(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}
	if !claimed {
		logger.Info(
			"session not pending; skipping duplicate run",
			logging.String("status", string(session.Status)),
			logging.String(logging.FieldEventType, "run_skipped"),
		)
		return nil, ErrAlreadyProcessing
	}

	// The session must never stay in processing, whatever happens below.
	terminal := false
	defer func() {
		if terminal {
			return
		}
		cleanupCtx := context.WithoutCancel(ctx)
		if markErr := o.store.MarkFailed(cleanupCtx, sessionID, "run aborted before completion"); markErr != nil {
			logger.Error("failed to mark aborted session failed", logging.Error(markErr))
		}
	}()

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go o.heartbeat.StartLoop(hbCtx, &hbWG, sessionID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	runStart := time.Now()
	logger.Info(
		"processing run started",
		logging.String("room", session.Room()),
		logging.String(logging.FieldEventType, "run_start"),
	)

	kinds := sessions.StageKinds()
	results := make([]StageOutcome, len(kinds))
	var wg sync.WaitGroup
	wg.Add(len(kinds))
	for i, kind := range kinds {
		go func(slot int, kind sessions.StageKind) {
			defer wg.Done()
			results[slot] = o.runStage(ctx, session, kind, o.handlers[kind])
		}(i, kind)
	}
	wg.Wait()

	outcome := &Outcome{
		SessionID: sessionID,
		Stages:    make(map[sessions.StageKind]StageOutcome, len(results)),
	}
	ready := make(map[string]json.RawMessage)
	var failures []failureEntry
	for _, result := range results {
		outcome.Stages[result.Stage] = result
		if result.Ready() {
			ready[string(result.Stage)] = result.Payload
			continue
		}
		failures = append(failures, failureEntry{
			Stage:   string(result.Stage),
			Kind:    result.Kind,
			Message: result.Message,
		})
	}
	outcome.ReadyCount = len(ready)

	finishCtx := context.WithoutCancel(ctx)
	if len(ready) >= o.threshold {
		o.reveal(finishCtx, logger, session, ready)
		outcome.Revealed = true
	} else {
		o.signalFailure(finishCtx, logger, session, ready, failures)
	}
	terminal = true

	logger.Info(
		"processing run finished",
		logging.Bool("revealed", outcome.Revealed),
		logging.Int("ready_count", outcome.ReadyCount),
		logging.Int("failed_count", len(failures)),
		logging.Duration("run_duration", time.Since(runStart)),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return outcome, nil
}

type failureEntry struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (o *Orchestrator) reveal(ctx context.Context, logger *slog.Logger, session *sessions.Session, ready map[string]json.RawMessage) {
	payload := mustMarshal(map[string]any{
		"session_id": session.ID,
		"results":    ready,
	})
	o.hub.Publish(events.Event{
		Room:      session.Room(),
		Name:      events.PostTranscriptionReveal,
		SessionID: session.ID,
		Payload:   payload,
	})
	o.hub.Publish(events.Event{
		Name:    events.DashboardRefresh,
		Payload: json.RawMessage(`{}`),
	})

	if err := o.store.MarkCompleted(ctx, session.ID); err != nil {
		logger.Error("failed to mark session completed", logging.Error(err))
	}
	if o.cfg == nil || o.cfg.Notifications.Completion {
		if err := o.notifier.NotifySessionCompleted(ctx, session.Title, len(ready), len(sessions.StageKinds())); err != nil {
			logger.Warn("completion notification failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) signalFailure(ctx context.Context, logger *slog.Logger, session *sessions.Session, ready map[string]json.RawMessage, failures []failureEntry) {
	if failures == nil {
		failures = []failureEntry{}
	}
	payload := mustMarshal(map[string]any{
		"session_id": session.ID,
		"failures":   failures,
	})
	o.hub.Publish(events.Event{
		Room:      session.Room(),
		Name:      events.PostTranscriptionFailed,
		SessionID: session.ID,
		Payload:   payload,
	})

	reason := fmt.Sprintf("insufficient_success: %d of %d stages succeeded (threshold %d)",
		len(ready), len(sessions.StageKinds()), o.threshold)
	if err := o.store.MarkFailed(ctx, session.ID, reason); err != nil {
		logger.Error("failed to mark session failed", logging.Error(err))
	}
	if o.cfg == nil || o.cfg.Notifications.Errors {
		if err := o.notifier.NotifySessionFailed(ctx, session.Title, reason); err != nil {
			logger.Warn("failure notification failed", logging.Error(err))
		}
	}
}

func (o *Orchestrator) runStage(ctx context.Context, session *sessions.Session, kind sessions.StageKind, handler stage.Handler) StageOutcome {
	name := string(kind)
	room := session.Room()
	logger := logging.WithContext(ctx, o.logger).With(logging.String(logging.FieldStage, name))
	stageStart := time.Now()

	o.hub.Publish(events.Event{
		Room:      room,
		Name:      events.StageStarted(name),
		SessionID: session.ID,
		Payload:   mustMarshal(map[string]any{"session_id": session.ID}),
	})

	var payload json.RawMessage
	var execErr error
	attempts := 0
	for attempt := 1; attempt <= o.retryAttempts; attempt++ {
		attempts = attempt
		if err := o.store.MarkStageStarted(ctx, session.ID, kind); err != nil {
			execErr = services.Wrap(services.ErrExecution, name, "record attempt", "", err)
			break
		}
		payload, execErr = o.executeOnce(ctx, session, kind, handler)
		if execErr == nil {
			break
		}
		if !services.IsRetryable(execErr) || attempt == o.retryAttempts {
			break
		}
		delay := o.backoffDelay(attempt)
		logger.Warn(
			"stage attempt failed; retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(execErr),
		)
		if err := o.sleep(ctx, delay); err != nil {
			break
		}
	}

	if execErr != nil {
		details := services.Details(execErr)
		cleanupCtx := context.WithoutCancel(ctx)
		if err := o.store.MarkStageFailed(cleanupCtx, session.ID, kind, details.Kind, details.Message); err != nil {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
		o.hub.Publish(events.Event{
			Room:      room,
			Name:      events.StageFailed(name),
			SessionID: session.ID,
			Payload: mustMarshal(map[string]any{
				"session_id": session.ID,
				"error":      map[string]string{"kind": details.Kind, "message": details.Message},
			}),
		})
		logger.Warn(
			"stage failed",
			logging.String("error_kind", details.Kind),
			logging.Int("attempts", attempts),
			logging.Duration("stage_duration", time.Since(stageStart)),
			logging.Error(execErr),
		)
		return StageOutcome{
			Stage:    kind,
			Err:      execErr,
			Kind:     details.Kind,
			Message:  details.Message,
			Attempts: attempts,
			Duration: time.Since(stageStart),
		}
	}

	o.hub.Publish(events.Event{
		Room:      room,
		Name:      events.StageReady(name),
		SessionID: session.ID,
		Payload: mustMarshal(map[string]any{
			"session_id": session.ID,
			"result":     json.RawMessage(payload),
		}),
	})
	logger.Info(
		"stage ready",
		logging.Int("attempts", attempts),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return StageOutcome{
		Stage:    kind,
		Payload:  payload,
		Attempts: attempts,
		Duration: time.Since(stageStart),
	}
}

// executeOnce invokes the handler with the per-stage timeout and panic
// containment. The same bounded context flows into the stage's own result
// persistence, so a timed-out stage cannot record a late success.
func (o *Orchestrator) executeOnce(ctx context.Context, session *sessions.Session, kind sessions.StageKind, handler stage.Handler) (json.RawMessage, error) {
	name := string(kind)
	if handler == nil {
		return nil, services.Wrap(services.ErrConfiguration, name, "resolve handler", "no handler registered for stage", nil)
	}

	stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()
	stageCtx = services.WithStage(stageCtx, name)
	stageCtx = services.WithRoom(stageCtx, session.Room())

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: services.Wrap(
					services.ErrExecution,
					name,
					"execute",
					fmt.Sprintf("stage panicked: %v", r),
					nil,
				)}
			}
		}()
		payload, err := handler.Execute(stageCtx, session)
		done <- result{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && stageCtx.Err() != nil && ctx.Err() == nil {
				return nil, services.Wrap(services.ErrTimeout, name, "execute", fmt.Sprintf("stage exceeded %s timeout", o.stageTimeout), res.err)
			}
			return nil, res.err
		}
		return res.payload, nil
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrExecution, name, "execute", "run cancelled", ctx.Err())
		}
		return nil, services.Wrap(services.ErrTimeout, name, "execute", fmt.Sprintf("stage exceeded %s timeout", o.stageTimeout), nil)
	}
}

func mustMarshal(value any) json.RawMessage {
	encoded, err := json.Marshal(value)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return encoded
}
