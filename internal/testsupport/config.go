package testsupport

import (
	"path/filepath"
	"testing"

	"mina/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Orchestrator.PollIntervalSeconds = 1
	cfgVal.Orchestrator.HeartbeatIntervalSeconds = 1
	cfgVal.Orchestrator.HeartbeatTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithSuccessThreshold overrides the stage success threshold on the test config.
func WithSuccessThreshold(threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.SuccessThreshold = threshold
	}
}

// WithStageTimeout overrides the per-stage timeout on the test config.
func WithStageTimeout(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.StageTimeoutSeconds = seconds
	}
}

// WithRetryAttempts overrides the per-stage retry budget on the test config.
func WithRetryAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Orchestrator.RetryAttempts = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
