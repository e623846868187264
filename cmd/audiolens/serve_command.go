package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bugaddr/audiolens/internal/daemonrun"
	"github.com/Bugaddr/audiolens/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audiolens daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if failed := preflight.FailedResults(preflight.RunAll(cfg)); len(failed) > 0 {
				for _, result := range failed {
					fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", result.Name, result.Detail)
				}
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			for _, dep := range preflight.CheckSystemDeps(cfg) {
				if !dep.Available && !dep.Optional {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s (%s) not found: %s\n", dep.Name, dep.Command, dep.Description)
				}
			}

			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	return cmd
}
