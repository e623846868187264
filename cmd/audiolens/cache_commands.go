package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/api"
	"github.com/Bugaddr/audiolens/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and purge the transcript cache and upload store",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache sizes and entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			overview, err := api.GatherCacheOverview(cmd.Context(), cfg, logging.NewNop())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, overview)
			}

			rows := [][]string{
				{
					"Transcripts",
					fmt.Sprintf("%d", overview.Transcripts.Entries),
					formatBytes(overview.Transcripts.TotalBytes),
				},
				{
					"Uploads",
					fmt.Sprintf("%d", overview.Uploads.Entries),
					formatBytes(overview.Uploads.TotalBytes),
				},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Store", "Entries", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(cmd.OutOrStdout(), "Free space: %s (%.0f%% of filesystem)\n",
				formatBytes(int64(overview.Uploads.FreeBytes)), overview.Uploads.FreeRatio*100)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var transcriptsOnly bool
	var uploadsOnly bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove cached transcripts and unreferenced uploads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			req := api.PurgeCachesRequest{
				Config:      cfg,
				Logger:      logging.NewNop(),
				Transcripts: !uploadsOnly,
				Uploads:     !transcriptsOnly,
			}
			result, err := api.PurgeCaches(cmd.Context(), req)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if req.Transcripts {
				fmt.Fprintf(stdout, "Removed %d cached transcript(s)\n", result.TranscriptsRemoved)
			}
			if req.Uploads {
				fmt.Fprintf(stdout, "Removed %d unreferenced upload(s)\n", result.UploadsRemoved)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&transcriptsOnly, "transcripts", false, "Only purge the transcript cache")
	cmd.Flags().BoolVar(&uploadsOnly, "uploads", false, "Only purge unreferenced uploads")
	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
