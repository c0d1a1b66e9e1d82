package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"mina/internal/config"
	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/notifications"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// ErrAlreadyProcessing reports that a run was requested for a session
// that is no longer pending. The duplicate run is a logged no-op.
var ErrAlreadyProcessing = errors.New("already_processing")

// Orchestrator coordinates the four enrichment stages for one session
// at a time: fan-out, per-stage timeout and retry, threshold policy,
// and the final reveal or failure signal.
type Orchestrator struct {
	cfg      *config.Config
	store    *sessions.Store
	hub      *events.Hub
	logger   *slog.Logger
	notifier notifications.Service
	handlers map[sessions.StageKind]stage.Handler

	threshold     int
	stageTimeout  time.Duration
	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration

	heartbeat *HeartbeatMonitor
	sleeper   func(time.Duration)
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithNotifier overrides the notification service (used in tests).
func WithNotifier(notifier notifications.Service) Option {
	return func(o *Orchestrator) {
		if notifier != nil {
			o.notifier = notifier
		}
	}
}

// WithSleeper overrides how retry backoff sleeps are performed (used in tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *Orchestrator) {
		o.sleeper = sleeper
	}
}

// WithStageTimeout overrides the per-stage timeout.
func WithStageTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.stageTimeout = timeout
		}
	}
}

// New constructs an orchestrator over the provided stage handlers.
func New(cfg *config.Config, store *sessions.Store, hub *events.Hub, logger *slog.Logger, handlers []stage.Handler, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	registry := make(map[sessions.StageKind]stage.Handler, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		registry[handler.Kind()] = handler
	}

	orch := &Orchestrator{
		cfg:           cfg,
		store:         store,
		hub:           hub,
		logger:        logging.NewComponentLogger(logger, "orchestrator"),
		notifier:      notifications.NewService(cfg),
		handlers:      registry,
		threshold:     cfg.Orchestrator.SuccessThreshold,
		stageTimeout:  time.Duration(cfg.Orchestrator.StageTimeoutSeconds) * time.Second,
		retryAttempts: cfg.Orchestrator.RetryAttempts,
		retryBase:     time.Duration(cfg.Orchestrator.RetryBackoffSeconds) * time.Second,
		retryMax:      10 * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Orchestrator.HeartbeatIntervalSeconds)*time.Second,
			time.Duration(cfg.Orchestrator.HeartbeatTimeoutSeconds)*time.Second,
		),
	}
	for _, opt := range opts {
		opt(orch)
	}
	if orch.retryAttempts <= 0 {
		orch.retryAttempts = 1
	}
	if orch.threshold <= 0 {
		orch.threshold = 1
	}
	return orch
}

// Outcome summarizes one completed processing run.
type Outcome struct {
	SessionID  int64
	Revealed   bool
	ReadyCount int
	Stages     map[sessions.StageKind]StageOutcome
}

// StageOutcome captures the terminal state of one stage within a run.
type StageOutcome struct {
	Stage    sessions.StageKind
	Payload  json.RawMessage
	Err      error
	Kind     string
	Message  string
	Attempts int
	Duration time.Duration
}

// Ready reports whether the stage produced a result.
func (s StageOutcome) Ready() bool {
	return s.Err == nil
}

func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	base := o.retryBase
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > o.retryMax/2 {
			return o.retryMax
		}
		delay *= 2
	}
	if o.retryMax > 0 && delay > o.retryMax {
		return o.retryMax
	}
	return delay
}

func (o *Orchestrator) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if o.sleeper != nil {
		o.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
