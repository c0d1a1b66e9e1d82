package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mina/internal/daemon"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and session processing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}

			status, err := client.status(cmd.Context())
			if err != nil {
				return statusFallback(cmd, ctx, jsonOut, err)
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			printStatus(cmd, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, status *daemon.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	runningKind := statusError
	runningMsg := "stopped"
	if status.Running {
		runningKind = statusOK
		runningMsg = "running"
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", runningKind, runningMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("API", statusInfo, status.APIBind, colorize))
	dbKind := statusInfo
	dbMsg := status.SessionDBPath
	if status.Database.Error != "" {
		dbKind = statusWarn
		dbMsg = fmt.Sprintf("%s (%s)", status.SessionDBPath, status.Database.Error)
	} else if status.Database.Exists && !status.Database.IntegrityCheck {
		dbKind = statusWarn
		dbMsg = fmt.Sprintf("%s (integrity check failed)", status.SessionDBPath)
	}
	fmt.Fprintln(out, renderStatusLine("Database", dbKind, dbMsg, colorize))
	fmt.Fprintln(out, renderStatusLine("Lock file", statusInfo, status.LockFilePath, colorize))
	if status.LogFilePath != "" {
		fmt.Fprintln(out, renderStatusLine("Log file", statusInfo, status.LogFilePath, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Sessions", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", status.Pending), colorize))
	processingKind := statusInfo
	if status.Processing > 0 {
		processingKind = statusOK
	}
	fmt.Fprintln(out, renderStatusLine("Processing", processingKind, fmt.Sprintf("%d", status.Processing), colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d", status.Completed), colorize))
	failedKind := statusInfo
	if status.Failed > 0 {
		failedKind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Failed", failedKind, fmt.Sprintf("%d", status.Failed), colorize))

	if len(status.Stages) > 0 {
		fmt.Fprintln(out)
		for _, line := range renderSectionHeader("Stages", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, stageHealth := range status.Stages {
			kind := statusOK
			message := "ready"
			if !stageHealth.Ready {
				kind = statusError
				message = stageHealth.Detail
			}
			fmt.Fprintln(out, renderStatusLine(stageHealth.Name, kind, message, colorize))
		}
	}
}

// statusFallback reports local session counts when the daemon is unreachable.
func statusFallback(cmd *cobra.Command, ctx *commandContext, jsonOut bool, apiErr error) error {
	store, err := ctx.openStore()
	if err != nil {
		return apiErr
	}
	defer store.Close()

	summary, err := store.Health(cmd.Context())
	if err != nil {
		return apiErr
	}

	if jsonOut {
		return writeJSON(cmd, map[string]any{
			"running":    false,
			"pending":    summary.Pending,
			"processing": summary.Processing,
			"completed":  summary.Completed,
			"failed":     summary.Failed,
			"total":      summary.Total,
		})
	}

	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not reachable; showing local database counts", colorize))
	fmt.Fprintln(out, renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d", summary.Pending), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing", statusInfo, fmt.Sprintf("%d", summary.Processing), colorize))
	fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d", summary.Completed), colorize))
	fmt.Fprintln(out, renderStatusLine("Failed", statusInfo, fmt.Sprintf("%d", summary.Failed), colorize))
	return nil
}
