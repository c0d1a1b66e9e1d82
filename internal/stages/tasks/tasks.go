package tasks

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

// Completer is the LLM surface the tasks stage depends on.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Task is a single action item extracted from the conversation.
type Task struct {
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
	DueHint     string `json:"due_hint,omitempty"`
}

// Result is the payload carried by the tasks_ready event.
type Result struct {
	Tasks []Task `json:"tasks"`
}

// Extractor pulls action items out of the transcript.
type Extractor struct {
	store     *sessions.Store
	cfg       *config.Config
	logger    *slog.Logger
	completer Completer
}

// NewExtractor constructs the tasks stage handler using default dependencies.
func NewExtractor(cfg *config.Config, store *sessions.Store, logger *slog.Logger) *Extractor {
	return NewExtractorWithDependencies(cfg, store, logger, llm.NewConfiguredClient(cfg))
}

// NewExtractorWithDependencies allows injecting collaborators (used in tests).
func NewExtractorWithDependencies(cfg *config.Config, store *sessions.Store, logger *slog.Logger, completer Completer) *Extractor {
	return &Extractor{
		store:     store,
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "tasks"),
		completer: completer,
	}
}

func (e *Extractor) Kind() sessions.StageKind {
	return sessions.StageTasks
}

func (e *Extractor) Execute(ctx context.Context, session *sessions.Session) (json.RawMessage, error) {
	logger := logging.WithContext(ctx, e.logger)

	transcript := strings.TrimSpace(session.Transcript)
	if transcript == "" {
		return nil, services.Wrap(
			services.ErrValidation,
			"tasks",
			"validate inputs",
			"session has no transcript to extract tasks from",
			nil,
		)
	}
	if e.completer == nil {
		return nil, services.Wrap(
			services.ErrConfiguration,
			"tasks",
			"validate dependencies",
			"LLM client unavailable; set llm.api_key in the config",
			nil,
		)
	}

	content, err := e.completer.CompleteJSON(ctx, taskExtractionSystemPrompt, transcript)
	if err != nil {
		if llm.IsTransient(err) {
			return nil, services.Wrap(services.ErrTransient, "tasks", "complete extraction", "", err)
		}
		return nil, services.Wrap(services.ErrExecution, "tasks", "complete extraction", "", err)
	}

	var parsed Result
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		return nil, services.Wrap(services.ErrExecution, "tasks", "parse payload", "", err)
	}
	cleaned := parsed.Tasks[:0]
	for _, task := range parsed.Tasks {
		task.Description = strings.TrimSpace(task.Description)
		task.Owner = strings.TrimSpace(task.Owner)
		task.DueHint = strings.TrimSpace(task.DueHint)
		if task.Description == "" {
			continue
		}
		cleaned = append(cleaned, task)
	}
	parsed.Tasks = cleaned
	if parsed.Tasks == nil {
		parsed.Tasks = []Task{}
	}

	payload, err := json.Marshal(parsed)
	if err != nil {
		return nil, services.Wrap(services.ErrExecution, "tasks", "encode payload", "", err)
	}
	if err := e.store.MarkStageReady(ctx, session.ID, sessions.StageTasks, payload); err != nil {
		return nil, services.Wrap(services.ErrExecution, "tasks", "persist result", "", err)
	}

	logger.Info("tasks extracted", logging.Int("task_count", len(parsed.Tasks)))
	return payload, nil
}

func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if e.completer == nil {
		return stage.Unhealthy("tasks", "LLM client not configured")
	}
	if e.cfg == nil || e.cfg.GetLLM().APIKey == "" {
		return stage.Unhealthy("tasks", "llm.api_key is not set")
	}
	return stage.Healthy("tasks")
}
