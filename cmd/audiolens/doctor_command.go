package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external dependencies and directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			color := shouldColorize(stdout)

			rows := make([][]string, 0, 4)
			missing := 0
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				state := colorize(color, ansiGreen, "ok")
				if !dep.Available {
					if dep.Optional {
						state = "missing (optional)"
					} else {
						state = colorize(color, ansiRed, "missing")
						missing++
					}
				}
				rows = append(rows, []string{dep.Name, dep.Command, state, dep.Description})
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Dependency", "Command", "State", "Purpose"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))

			failed := preflight.FailedResults(preflight.RunAll(cfg))
			for _, result := range failed {
				fmt.Fprintf(stdout, "%s: %s\n", result.Name, colorize(color, ansiRed, result.Detail))
			}
			notify := preflight.CheckNotificationsFromConfig(cfg)
			fmt.Fprintf(stdout, "%s: %s\n", notify.Name, notify.Detail)

			if missing > 0 || len(failed) > 0 {
				return fmt.Errorf("%d problem(s) found", missing+len(failed))
			}
			fmt.Fprintln(stdout, "All checks passed")
			return nil
		},
	}
}
