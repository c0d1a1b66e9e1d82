package refinement

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

// Completer is the LLM surface the refinement stage depends on.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Result is the payload carried by the refinement_ready event.
type Result struct {
	RefinedText string `json:"refined_text"`
	ChangeCount int    `json:"change_count"`
}

// Refiner cleans up the raw transcript: punctuation, casing, and removal
// of obvious transcription artifacts.
type Refiner struct {
	store     *sessions.Store
	cfg       *config.Config
	logger    *slog.Logger
	completer Completer
}

// NewRefiner constructs the refinement stage handler using default dependencies.
func NewRefiner(cfg *config.Config, store *sessions.Store, logger *slog.Logger) *Refiner {
	return NewRefinerWithDependencies(cfg, store, logger, llm.NewConfiguredClient(cfg))
}

// NewRefinerWithDependencies allows injecting collaborators (used in tests).
func NewRefinerWithDependencies(cfg *config.Config, store *sessions.Store, logger *slog.Logger, completer Completer) *Refiner {
	return &Refiner{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "refinement"),
		completer: completer,
	}
}

func (r *Refiner) Kind() sessions.StageKind {
	return sessions.StageRefinement
}

func (r *Refiner) Execute(ctx context.Context, session *sessions.Session) (json.RawMessage, error) {
	logger := logging.WithContext(ctx, r.logger)

	transcript := strings.TrimSpace(session.Transcript)
	if transcript == "" {
		return nil, services.Wrap(
			services.ErrValidation,
			"refinement",
			"validate inputs",
			"session has no transcript to refine",
			nil,
		)
	}
	if r.completer == nil {
		return nil, services.Wrap(
			services.ErrConfiguration,
			"refinement",
			"validate dependencies",
			"LLM client unavailable; set llm.api_key in the config",
			nil,
		)
	}

	logger.Info("refining transcript", logging.Int("transcript_chars", len(transcript)))

	content, err := r.completer.CompleteJSON(ctx, refinementSystemPrompt, transcript)
	if err != nil {
		return nil, classifyLLMError("refinement", "complete refinement", err)
	}

	var parsed Result
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExecution, "refinement", "parse payload", "", err)
	}
	parsed.RefinedText = strings.TrimSpace(parsed.RefinedText)
	if parsed.RefinedText == "" {
		return nil, services.Wrap(
			services.ErrExecution,
			"refinement",
			"validate payload",
			"model returned empty refined text",
			nil,
		)
	}
	if parsed.ChangeCount < 0 {
		parsed.ChangeCount = 0
	}

	payload, err := json.Marshal(parsed)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "refinement", "encode payload", "", err)
	}
	if err := r.store.MarkStageReady(ctx, session.ID, sessions.StageRefinement, payload); err != nil {
		return nil, services.Wrap(services.ErrExecution, "refinement", "persist result", "", err)
	}

	logger.Info("transcript refined", logging.Int("change_count", parsed.ChangeCount))
	return payload, nil
}

func (r *Refiner) HealthCheck(ctx context.Context) stage.Health {
	if r.completer == nil {
		return stage.Unhealthy("refinement", "LLM client not configured")
	}
	if r.cfg == nil || r.cfg.GetLLM().APIKey == "" {
		return stage.Unhealthy("refinement", "llm.api_key is not set")
	}
	return stage.Healthy("refinement")
}

func classifyLLMError(stageName, operation string, err error) error {
	if llm.IsTransient(err) {
		return services.Wrap(services.ErrTransient, stageName, operation, "", err)
	}
	return services.Wrap(services.ErrExecution, stageName, operation, "", err)
}
