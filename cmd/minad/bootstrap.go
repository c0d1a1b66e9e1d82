package main

import (
	"log/slog"

	"mina/internal/config"
	"mina/internal/sessions"
	"mina/internal/stage"
	"mina/internal/stages/analytics"
	"mina/internal/stages/refinement"
	"mina/internal/stages/summary"
	"mina/internal/stages/tasks"
)

func buildStageHandlers(cfg *config.Config, store *sessions.Store, logger *slog.Logger) []stage.Handler {
	if cfg == nil || store == nil {
		return nil
	}
	return []stage.Handler{
		refinement.NewRefiner(cfg, store, logger),
		analytics.NewAnalyzer(cfg, store, logger),
		tasks.NewExtractor(cfg, store, logger),
		summary.NewSummarizer(cfg, store, logger),
	}
}
