package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mina/internal/config"
	"mina/internal/logging"
	"mina/internal/sessions"
)

// Manager drives the processing loop: it polls for pending sessions,
// reclaims stale ones, and hands each to the orchestrator.
type Manager struct {
	cfg    *config.Config
	store  *sessions.Store
	orch   *Orchestrator
	logger *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastOutcome *Outcome
}

// NewManager constructs the processing loop over an orchestrator.
func NewManager(cfg *config.Config, store *sessions.Store, orch *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		orch:               orch,
		logger:             logging.NewComponentLogger(logger, "manager"),
		pollInterval:       time.Duration(cfg.Orchestrator.PollIntervalSeconds) * time.Second,
		errorRetryInterval: time.Duration(cfg.Orchestrator.ErrorRetryIntervalSeconds) * time.Second,
	}
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("manager already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the processing loop is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent loop error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LastOutcome returns the most recent completed run outcome, if any.
func (m *Manager) LastOutcome() *Outcome {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastOutcome
}

func (m *Manager) runLoop(ctx context.Context) {
	defer m.wg.Done()
	logger := m.logger

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.orch.heartbeat.ReclaimStale(ctx, logger); err != nil {
			logger.Warn("reclaim stale sessions failed; stuck sessions may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check session database access"),
			)
		}

		session, err := m.store.NextPending(ctx)
		if err != nil {
			m.setLastError(err)
			logger.Error("failed to fetch next pending session",
				logging.Error(err),
				logging.String(logging.FieldEventType, "session_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check session database access"),
			)
			m.notifyError(ctx, logger, err, "fetch pending session")
			m.waitOrShutdown(ctx, m.errorRetryInterval)
			continue
		}
		if session == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		outcome, err := m.orch.Run(ctx, session.ID)
		switch {
		case err == nil:
			m.setLastOutcome(outcome)
		case errors.Is(err, ErrAlreadyProcessing):
			// Another runner claimed it between the poll and the run.
		case errors.Is(err, context.Canceled):
			return
		default:
			m.setLastError(err)
			logger.Error("processing run failed",
				logging.Int64(logging.FieldSessionID, session.ID),
				logging.Error(err),
			)
			m.notifyError(ctx, logger, err, "processing run")
			m.waitOrShutdown(ctx, m.errorRetryInterval)
		}
	}
}

// notifyError pushes loop errors through the configured notifier.
func (m *Manager) notifyError(ctx context.Context, logger *slog.Logger, err error, label string) {
	if m.cfg != nil && !m.cfg.Notifications.Errors {
		return
	}
	if nerr := m.orch.notifier.NotifyError(ctx, err, label); nerr != nil {
		logger.Warn("failed to send error notification", logging.Error(nerr))
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastOutcome(outcome *Outcome) {
	m.mu.Lock()
	m.lastOutcome = outcome
	m.mu.Unlock()
}
