package analytics

import (
	"context"
	"encoding/json"
	"log/slog"

	"mina/internal/config"
	"mina/internal/logging"
	"mina/internal/services"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// Result is the payload carried by the analytics_ready event.
type Result struct {
	WordCount       int                `json:"word_count"`
	SpeakerCount    int                `json:"speaker_count"`
	TalkShare       map[string]float64 `json:"talk_share,omitempty"`
	FillerWordCount int                `json:"filler_word_count"`
	FillerWords     map[string]int     `json:"filler_words,omitempty"`
	DurationSeconds int                `json:"duration_seconds,omitempty"`
	WordsPerMinute  float64            `json:"words_per_minute,omitempty"`
}

// Analyzer computes deterministic conversation metrics from the raw
// transcript. It never touches the network.
type Analyzer struct {
	store  *sessions.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewAnalyzer constructs the analytics stage handler.
func NewAnalyzer(cfg *config.Config, store *sessions.Store, logger *slog.Logger) *Analyzer {
	return &Analyzer{store: store, cfg: cfg, logger: logging.NewComponentLogger(logger, "analytics")}
}

func (a *Analyzer) Kind() sessions.StageKind {
	return sessions.StageAnalytics
}

func (a *Analyzer) Execute(ctx context.Context, session *sessions.Session) (json.RawMessage, error) {
	logger := logging.WithContext(ctx, a.logger)

	result := Analyze(session.Transcript)

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "analytics", "encode payload", "", err)
	}
	if err := a.store.MarkStageReady(ctx, session.ID, sessions.StageAnalytics, payload); err != nil {
		return nil, services.Wrap(services.ErrExecution, "analytics", "persist result", "", err)
	}

	logger.Info(
		"transcript analyzed",
		logging.Int("word_count", result.WordCount),
		logging.Int("speaker_count", result.SpeakerCount),
		logging.Int("filler_word_count", result.FillerWordCount),
	)
	return payload, nil
}

func (a *Analyzer) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("analytics")
}
