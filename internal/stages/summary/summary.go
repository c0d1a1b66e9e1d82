package summary

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"mina/internal/config"
	"mina/internal/logging"
	"mina/internal/services"
	"mina/internal/services/llm"
	"mina/internal/sessions"
	"mina/internal/stage"
)

// Completer is the LLM surface the summary stage depends on.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result is the payload carried by the summary_ready event.
type Result struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// Summarizer produces a short narrative summary with key points.
type Summarizer struct {
	store     *sessions.Store
	cfg       *config.Config
	logger    *slog.Logger
	completer Completer
}

// NewSummarizer constructs the summary stage handler using default dependencies.
func NewSummarizer(cfg *config.Config, store *sessions.Store, logger *slog.Logger) *Summarizer {
	return NewSummarizerWithDependencies(cfg, store, logger, llm.NewConfiguredClient(cfg))
}

// NewSummarizerWithDependencies allows injecting collaborators (used in tests).
func NewSummarizerWithDependencies(cfg *config.Config, store *sessions.Store, logger *slog.Logger, completer Completer) *Summarizer {
	return &Summarizer{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "summary"),
		completer: completer,
	}
}

func (s *Summarizer) Kind() sessions.StageKind {
	return sessions.StageSummary
}

func (s *Summarizer) Execute(ctx context.Context, session *sessions.Session) (json.RawMessage, error) {
	logger := logging.WithContext(ctx, s.logger)

	transcript := strings.TrimSpace(session.Transcript)
	if transcript == "" {
		return nil, services.Wrap(
			services.ErrValidation,
			"summary",
			"validate inputs",
			"session has no transcript to summarize",
			nil,
		)
	}
	if s.completer == nil {
		return nil, services.Wrap(
			services.ErrConfiguration,
			"summary",
			"validate dependencies",
			"LLM client unavailable; set llm.api_key in the config",
			nil,
		)
	}

	content, err := s.completer.CompleteJSON(ctx, summarySystemPrompt, transcript)
	if err != nil {
		if llm.IsTransient(err) {
			return nil, services.Wrap(services.ErrTransient, "summary", "complete summary", "", err)
		}
		return nil, services.Wrap(services.ErrExecution, "summary", "complete summary", "", err)
	}

	var parsed Result
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExecution, "summary", "parse payload", "", err)
	}
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	if parsed.Summary == "" {
		return nil, services.Wrap(
			services.ErrExecution,
			"summary",
			"validate payload",
			"model returned empty summary",
			nil,
		)
	}
	points := parsed.KeyPoints[:0]
	for _, point := range parsed.KeyPoints {
		if point = strings.TrimSpace(point); point != "" {
			points = append(points, point)
		}
	}
	parsed.KeyPoints = points
	if parsed.KeyPoints == nil {
		parsed.KeyPoints = []string{}
	}

	payload, err := json.Marshal(parsed)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "summary", "encode payload", "", err)
	}
	if err := s.store.MarkStageReady(ctx, session.ID, sessions.StageSummary, payload); err != nil {
		return nil, services.Wrap(services.ErrExecution, "summary", "persist result", "", err)
	}

	logger.Info("transcript summarized", logging.Int("key_points", len(parsed.KeyPoints)))
	return payload, nil
}

func (s *Summarizer) HealthCheck(ctx context.Context) stage.Health {
	if s.completer == nil {
		return stage.Unhealthy("summary", "LLM client not configured")
	}
	if s.cfg == nil || s.cfg.GetLLM().APIKey == "" {
		return stage.Unhealthy("summary", "llm.api_key is not set")
	}
	return stage.Healthy("summary")
}
