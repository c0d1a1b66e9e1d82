package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mina/internal/events"
	"mina/internal/logging"
	"mina/internal/orchestrator"
	"mina/internal/sessions"
	"mina/internal/stage"
	"mina/internal/stages/analytics"
	"mina/internal/stages/refinement"
	"mina/internal/stages/summary"
	"mina/internal/stages/tasks"
)

const roundUnit = 10 * time.Millisecond

// newProcessCommand runs the processing pipeline for one session in the
// foreground, without the daemon. Useful for debugging a single transcript.
func newProcessCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <id>",
		Short: "Process one pending session in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0])
			if err != nil {
				return err
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			hub := events.NewHub(cfg.Events.BufferSize)
			if cfg.Events.LedgerEnabled {
				hub.AddSink(sessions.NewEventLedger(store))
			}
			handlers := []stage.Handler{
				refinement.NewRefiner(cfg, store, logger),
				analytics.NewAnalyzer(cfg, store, logger),
				tasks.NewExtractor(cfg, store, logger),
				summary.NewSummarizer(cfg, store, logger),
			}
			orch := orchestrator.New(cfg, store, hub, logger, handlers)

			outcome, err := orch.Run(cmd.Context(), id)
			if errors.Is(err, orchestrator.ErrAlreadyProcessing) {
				return fmt.Errorf("session %d is not pending; only pending sessions can be processed", id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, kind := range sessions.StageKinds() {
				result := outcome.Stages[kind]
				if result.Ready() {
					fmt.Fprintf(out, "%-12s ready (%d attempt(s), %s)\n", kind, result.Attempts, result.Duration.Round(roundUnit))
					continue
				}
				fmt.Fprintf(out, "%-12s failed: %s: %s\n", kind, result.Kind, result.Message)
			}
			if outcome.Revealed {
				fmt.Fprintf(out, "Session %d completed with %d/%d stages ready\n", id, outcome.ReadyCount, len(sessions.StageKinds()))
			} else {
				fmt.Fprintf(out, "Session %d failed: only %d/%d stages ready\n", id, outcome.ReadyCount, len(sessions.StageKinds()))
			}
			return nil
		},
	}
	return cmd
}
