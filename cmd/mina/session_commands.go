package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mina/internal/sessions"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage sessions",
	}

	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	sessionCmd.AddCommand(newSessionAddCommand(ctx))
	sessionCmd.AddCommand(newSessionRetryCommand(ctx))
	sessionCmd.AddCommand(newSessionClearCommand(ctx))

	return sessionCmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFilters)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			list, err := store.List(cmd.Context(), statuses...)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, sessionListJSON(list))
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions found")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, session := range list {
				rows = append(rows, []string{
					strconv.FormatInt(session.ID, 10),
					truncate(session.Title, 40),
					string(session.Status),
					session.CreatedAt.Local().Format("2006-01-02 15:04"),
					truncate(session.ErrorMessage, 48),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Status", "Created", "Error"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output sessions as JSON")
	return cmd
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showPayloads bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session with its stage results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePositiveID(args[0])
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			session, err := store.GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}
			if session == nil {
				return fmt.Errorf("session %d not found", id)
			}
			results, err := store.StageResults(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load stage results: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, sessionDetailJSON(session, results))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %d: %s\n", session.ID, session.Title)
			fmt.Fprintf(out, "  Status:  %s\n", session.Status)
			fmt.Fprintf(out, "  Token:   %s\n", session.Token)
			fmt.Fprintf(out, "  Created: %s\n", session.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if session.ErrorMessage != "" {
				fmt.Fprintf(out, "  Error:   %s\n", session.ErrorMessage)
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(sessions.StageKinds()))
			for _, kind := range sessions.StageKinds() {
				result := results[kind]
				if result == nil {
					rows = append(rows, []string{string(kind), string(sessions.StageNotStarted), "0", "", ""})
					continue
				}
				completed := ""
				if result.CompletedAt != nil {
					completed = result.CompletedAt.Local().Format("15:04:05")
				}
				detail := result.ErrorMessage
				if result.ErrorKind != "" {
					detail = fmt.Sprintf("%s: %s", result.ErrorKind, result.ErrorMessage)
				}
				rows = append(rows, []string{
					string(kind),
					string(result.Status),
					strconv.Itoa(result.Attempts),
					completed,
					truncate(detail, 56),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Status", "Attempts", "Completed", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))

			if showPayloads {
				for _, kind := range sessions.StageKinds() {
					result := results[kind]
					if result == nil || len(result.Payload) == 0 {
						continue
					}
					fmt.Fprintf(out, "\n%s result:\n%s\n", kind, string(result.Payload))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output session detail as JSON")
	cmd.Flags().BoolVar(&showPayloads, "payloads", false, "Print raw stage result payloads")
	return cmd
}

func newSessionAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var transcriptPath string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a finished transcript for post-processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(transcriptPath)
			if path == "" {
				return errors.New("--file is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read transcript file: %w", err)
			}
			transcript := strings.TrimSpace(string(data))
			if transcript == "" {
				return fmt.Errorf("transcript file %s is empty", path)
			}
			if strings.TrimSpace(title) == "" {
				base := filepath.Base(path)
				title = strings.TrimSuffix(base, filepath.Ext(base))
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			session, err := store.NewSession(cmd.Context(), title, transcript)
			if err != nil {
				return fmt.Errorf("queue session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %d queued (%s)\n", session.ID, session.Title)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Session title")
	cmd.Flags().StringVarP(&transcriptPath, "file", "f", "", "Path to the transcript text file")
	return cmd
}

func newSessionRetryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <id>...",
		Short: "Reset failed sessions back to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			for _, id := range ids {
				reset, err := store.RetryFailed(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("retry session %d: %w", id, err)
				}
				if reset {
					fmt.Fprintf(out, "Session %d reset for retry\n", id)
				} else {
					fmt.Fprintf(out, "Session %d is not in a retryable state (only failed sessions can be retried)\n", id)
				}
			}
			return nil
		},
	}
	return cmd
}

func newSessionClearCommand(ctx *commandContext) *cobra.Command {
	var all, completed, failed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove sessions from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{all, completed, failed} {
				if flag {
					selected++
				}
			}
			if selected != 1 {
				return errors.New("specify exactly one of --all, --completed, or --failed")
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var removed int64
			var label string
			switch {
			case completed:
				removed, err = store.ClearCompleted(cmd.Context())
				label = "completed sessions"
			case failed:
				removed, err = store.ClearFailed(cmd.Context())
				label = "failed sessions"
			default:
				removed, err = store.Clear(cmd.Context())
				label = "sessions"
			}
			if err != nil {
				return fmt.Errorf("clear %s: %w", label, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, label)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every session")
	cmd.Flags().BoolVar(&completed, "completed", false, "Remove only completed sessions")
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove only failed sessions")
	return cmd
}

func parseStatusFilters(values []string) ([]sessions.Status, error) {
	statuses := make([]sessions.Status, 0, len(values))
	for _, value := range values {
		parsed, ok := sessions.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, parsed)
	}
	return statuses, nil
}

func sessionListJSON(list []*sessions.Session) map[string]any {
	items := make([]map[string]any, 0, len(list))
	for _, session := range list {
		items = append(items, map[string]any{
			"id":         session.ID,
			"title":      session.Title,
			"status":     string(session.Status),
			"created_at": session.CreatedAt,
			"error":      session.ErrorMessage,
		})
	}
	return map[string]any{"sessions": items}
}

func sessionDetailJSON(session *sessions.Session, results map[sessions.StageKind]*sessions.StageResult) map[string]any {
	stages := make([]map[string]any, 0, len(sessions.StageKinds()))
	for _, kind := range sessions.StageKinds() {
		result := results[kind]
		if result == nil {
			stages = append(stages, map[string]any{
				"stage":  string(kind),
				"status": string(sessions.StageNotStarted),
			})
			continue
		}
		stages = append(stages, map[string]any{
			"stage":         string(result.Stage),
			"status":        string(result.Status),
			"attempts":      result.Attempts,
			"payload":       result.Payload,
			"error_kind":    result.ErrorKind,
			"error_message": result.ErrorMessage,
		})
	}
	return map[string]any{
		"session": map[string]any{
			"id":         session.ID,
			"token":      session.Token,
			"title":      session.Title,
			"status":     string(session.Status),
			"created_at": session.CreatedAt,
			"error":      session.ErrorMessage,
		},
		"stages": stages,
	}
}
