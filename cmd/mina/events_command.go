package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mina/internal/daemon"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var room string
	var since uint64
	var limit int
	var follow bool
	var replay bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream or replay processing events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if replay {
				return replayEvents(cmd, ctx, room, limit, jsonOut)
			}

			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}

			cursor := since
			for {
				resp, err := client.events(runCtx, room, cursor, limit, follow)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				if jsonOut {
					if err := writeJSON(cmd, resp); err != nil {
						return err
					}
				} else {
					printEvents(cmd.OutOrStdout(), resp.Events)
				}
				if resp.Next > cursor {
					cursor = resp.Next
				}
				if !follow {
					return nil
				}
				if runCtx.Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "Restrict to one session room (e.g. session-12)")
	cmd.Flags().Uint64Var(&since, "since", 0, "Return events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events per fetch")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Long-poll for new events until interrupted")
	cmd.Flags().BoolVar(&replay, "replay", false, "Replay persisted events from the ledger instead of the live hub")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output events as JSON")
	return cmd
}

func printEvents(out io.Writer, events []daemon.EventView) {
	for _, evt := range events {
		room := evt.Room
		if room == "" {
			room = "*"
		}
		fmt.Fprintf(out, "%6d  %s  %-14s %-28s %s\n",
			evt.Sequence,
			evt.Timestamp.Local().Format("15:04:05.000"),
			room,
			evt.Name,
			string(evt.Payload),
		)
	}
}

// replayEvents reads from the SQLite ledger directly, so it works with the
// daemon stopped and reaches past the in-memory ring.
func replayEvents(cmd *cobra.Command, ctx *commandContext, room string, limit int, jsonOut bool) error {
	store, err := ctx.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.RecentEvents(cmd.Context(), room, limit)
	if err != nil {
		return fmt.Errorf("read event ledger: %w", err)
	}

	if jsonOut {
		return writeJSON(cmd, map[string]any{"events": entries})
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ledger events found (is ledger_enabled set?)")
		return nil
	}
	for _, entry := range entries {
		room := entry.Room
		if room == "" {
			room = "*"
		}
		fmt.Fprintf(out, "%6d  %s  %-14s %-28s %s\n",
			entry.Seq,
			entry.CreatedAt.Local().Format("15:04:05.000"),
			room,
			entry.Name,
			entry.Payload,
		)
	}
	return nil
}
