package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/textutil"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed jobs available for resume",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			entries, err := apiClient.History(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No completed jobs")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					entry.ID,
					textutil.Truncate(entry.Title, 40),
					entry.AudioURL,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Audio"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}
