package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/jobs"
	"github.com/Bugaddr/audiolens/internal/textutil"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var asJSON bool

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and maintain job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer store.Close()

			statuses := make([]jobs.Status, 0, len(statusFilters))
			for _, raw := range statusFilters {
				status, ok := jobs.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			records, err := api.NewJobService(store).List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, api.JobListResponse{Jobs: records})
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, record := range records {
				progress := ""
				if record.Progress.Stage != "" {
					progress = fmt.Sprintf("%s %.0f%%", record.Progress.Stage, record.Progress.Percent)
				}
				detail := record.ErrorMessage
				if detail == "" {
					detail = progress
				}
				rows = append(rows, []string{
					record.ID,
					textutil.Truncate(record.Title, 32),
					record.Status,
					textutil.Truncate(detail, 40),
					record.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Status", "Detail", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	jobsCmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (queued, transcribing, completed, error)")
	jobsCmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")

	jobsCmd.AddCommand(newJobsClearCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))
	jobsCmd.AddCommand(newJobsHealthCommand(ctx))
	return jobsCmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool
	var erroredOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scope := api.ClearScopeAll
			switch {
			case completedOnly && erroredOnly:
				return fmt.Errorf("--completed and --errored are mutually exclusive")
			case completedOnly:
				scope = api.ClearScopeCompleted
			case erroredOnly:
				scope = api.ClearScopeErrored
			}

			removed, err := api.ClearJobs(cmd.Context(), api.ClearJobsRequest{Config: cfg, Scope: scope})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job record(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Only remove completed jobs")
	cmd.Flags().BoolVar(&erroredOnly, "errored", false, "Only remove errored jobs")
	return cmd
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <job-id>",
		Short: "Remove a single job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			removed, err := api.RemoveJob(cmd.Context(), cfg, id)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no job with id %s", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", id)
			return nil
		},
	}
}

func newJobsHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check job database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			health, err := api.JobDatabaseHealth(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			healthy := health.DatabaseExists && health.DatabaseReadable && health.TableExists && health.IntegrityCheck

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Database:  %s\n", health.DBPath)
			fmt.Fprintf(stdout, "Exists:    %s\n", yesNo(health.DatabaseExists))
			fmt.Fprintf(stdout, "Readable:  %s\n", yesNo(health.DatabaseReadable))
			fmt.Fprintf(stdout, "Schema:    %s\n", yesNo(health.TableExists))
			fmt.Fprintf(stdout, "Integrity: %s\n", yesNo(health.IntegrityCheck))
			fmt.Fprintf(stdout, "Jobs:      %d\n", health.TotalJobs)
			if health.Error != "" {
				fmt.Fprintf(stdout, "Detail:    %s\n", health.Error)
			}
			if !healthy {
				return fmt.Errorf("job database unhealthy")
			}
			return nil
		},
	}
}
