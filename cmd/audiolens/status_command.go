package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/client"
	"github.com/Bugaddr/audiolens/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon status, or the status of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return runJobStatus(cmd, apiClient, args[0], asJSON)
			}
			return runDaemonStatus(cmd, apiClient, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func runJobStatus(cmd *cobra.Command, apiClient *client.Client, jobID string, asJSON bool) error {
	status, err := apiClient.Status(cmd.Context(), jobID)
	if client.IsNotFound(err) {
		return fmt.Errorf("no job with id %s", jobID)
	}
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(cmd, status)
	}

	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Status:  %s\n", status.Status)
	if status.Title != "" {
		fmt.Fprintf(stdout, "Title:   %s\n", status.Title)
	}
	switch jobs.Status(status.Status) {
	case jobs.StatusCompleted:
		fmt.Fprintf(stdout, "PDF:     %s\n", status.PDFURL)
		fmt.Fprintf(stdout, "Audio:   %s\n", status.AudioURL)
		if status.Transcript != nil {
			fmt.Fprintf(stdout, "Segments: %d\n", len(status.Transcript.Segments))
		}
	case jobs.StatusError:
		fmt.Fprintf(stdout, "Error:   %s\n", status.ErrorMsg)
	default:
		if status.Progress != nil && status.Progress.Stage != "" {
			fmt.Fprintf(stdout, "Stage:   %s (%.0f%%)\n", status.Progress.Stage, status.Progress.Percent)
		}
	}
	return nil
}

func runDaemonStatus(cmd *cobra.Command, apiClient *client.Client, asJSON bool) error {
	status, err := apiClient.DaemonStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w (start it with `audiolens serve`)", apiClient.BaseURL(), err)
	}
	if asJSON {
		return writeJSON(cmd, status)
	}

	stdout := cmd.OutOrStdout()
	color := shouldColorize(stdout)

	fmt.Fprintf(stdout, "Daemon:  %s (pid %d)\n", runningLabel(status.Running, color), status.PID)
	fmt.Fprintf(stdout, "Job DB:  %s\n", status.JobDBPath)
	fmt.Fprintf(stdout, "Lock:    %s\n", status.LockFilePath)
	if status.Pipeline.LastError != "" {
		fmt.Fprintf(stdout, "Last error: %s\n", status.Pipeline.LastError)
	}
	if len(status.Pipeline.JobStats) > 0 {
		fmt.Fprintln(stdout, "Jobs:")
		for _, state := range jobs.AllStatuses() {
			if count := status.Pipeline.JobStats[string(state)]; count > 0 {
				fmt.Fprintf(stdout, "  %-13s %d\n", string(state)+":", count)
			}
		}
	}
	if len(status.Dependencies) > 0 {
		fmt.Fprintln(stdout, "Dependencies:")
		for _, dep := range status.Dependencies {
			fmt.Fprintf(stdout, "  %-10s %s\n", dep.Name+":", dependencyLabel(dep, color))
		}
	}
	return nil
}

func runningLabel(running bool, color bool) string {
	if running {
		return colorize(color, ansiGreen, "running")
	}
	return colorize(color, ansiRed, "stopped")
}

func dependencyLabel(dep api.DependencyStatus, color bool) string {
	if dep.Available {
		return colorize(color, ansiGreen, "available")
	}
	if dep.Optional {
		return "missing (optional)"
	}
	return colorize(color, ansiRed, "missing")
}
