package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"mina/internal/config"
	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/notifications"
	"mina/internal/orchestrator"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// Daemon coordinates the background processing loop and the HTTP API, and
// enforces single-instance execution through a lock file.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *sessions.Store
	hub     *events.Hub
	orch    *orchestrator.Orchestrator
	manager *orchestrator.Manager
	logPath string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Sessions      sessions.HealthSummary
	Database      sessions.DatabaseHealth
	Stages        []stage.Health
	SessionDBPath string
	LockFilePath  string
	LogFilePath   string
	APIBind       string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *sessions.Store, hub *events.Hub, logger *slog.Logger, orch *orchestrator.Orchestrator, manager *orchestrator.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || hub == nil || logger == nil || orch == nil || manager == nil {
		return nil, errors.New("daemon requires config, store, hub, logger, orchestrator, and manager")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "minad.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		hub:      hub,
		orch:     orch,
		manager:  manager,
		logPath:  filepath.Join(cfg.Paths.LogDir, "mina.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, fmt.Errorf("configure api server: %w", err)
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the processing loop and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mina daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	if err := d.manager.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start processing loop: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("mina daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("mina daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ListSessions returns sessions filtered by optional statuses.
func (d *Daemon) ListSessions(ctx context.Context, statuses []sessions.Status) ([]*sessions.Session, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	return d.store.List(ctx, statuses...)
}

// DescribeSession returns one session together with its stage results.
func (d *Daemon) DescribeSession(ctx context.Context, id int64) (*sessions.Session, map[sessions.StageKind]*sessions.StageResult, error) {
	if d.store == nil {
		return nil, nil, errors.New("session store unavailable")
	}
	session, err := d.store.GetByID(ctx, id)
	if err != nil || session == nil {
		return session, nil, err
	}
	results, err := d.store.StageResults(ctx, id)
	if err != nil {
		return session, nil, err
	}
	return session, results, nil
}

// AddSession enqueues a finished transcript for post-processing.
func (d *Daemon) AddSession(ctx context.Context, title, transcript string) (*sessions.Session, error) {
	if d.store == nil {
		return nil, errors.New("session store unavailable")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("transcript is required")
	}
	session, err := d.store.NewSession(ctx, title, transcript)
	if err != nil {
		return nil, fmt.Errorf("enqueue session: %w", err)
	}
	d.logger.Info("session queued",
		logging.Int64(logging.FieldSessionID, session.ID),
		logging.String("title", session.Title),
	)
	return session, nil
}

// RetrySession resets a failed session back to pending for another run.
func (d *Daemon) RetrySession(ctx context.Context, id int64) (bool, error) {
	if d.store == nil {
		return false, errors.New("session store unavailable")
	}
	return d.store.RetryFailed(ctx, id)
}

// ClearSessions removes all sessions.
func (d *Daemon) ClearSessions(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("session store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed sessions.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("session store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed sessions.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("session store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// SessionHealth returns aggregate session diagnostics.
func (d *Daemon) SessionHealth(ctx context.Context) (sessions.HealthSummary, error) {
	if d.store == nil {
		return sessions.HealthSummary{}, errors.New("session store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (sessions.DatabaseHealth, error) {
	if d.store == nil {
		return sessions.DatabaseHealth{}, errors.New("session store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.SessionHealth(ctx)
	if err != nil {
		d.logger.Warn("session health lookup failed", logging.Error(err))
	}
	database, err := d.DatabaseHealth(ctx)
	if err != nil {
		d.logger.Warn("database health lookup failed", logging.Error(err))
	}
	return Status{
		Running:       d.running.Load() && d.manager.Running(),
		Sessions:      summary,
		Database:      database,
		Stages:        d.orch.HealthCheck(ctx),
		SessionDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
		LogFilePath:   d.LogPath(),
		APIBind:       d.cfg.Paths.APIBind,
	}
}
