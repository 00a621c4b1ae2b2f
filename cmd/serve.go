package cmd

import (
	"context"
	"fmt"

	"threatharvest/bootstrap"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand: the long-running service
// with the API server and, when enabled, the enrichment scheduler.
func newServeCmd() *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and scheduler",
		Long:  "Start the HTTP API server and, when schedule.enabled is set, the periodic enrichment scheduler. Runs until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			app, err := bootstrap.NewApp(ctx)
			if err != nil {
				return err
			}

			if err := app.Start(ctx); err != nil {
				app.Shutdown()
				return fmt.Errorf("failed to start services: %w", err)
			}

			if runOnStart {
				if _, err := app.Service.Run(ctx); err != nil {
					app.Sugar.Errorw("Startup enrichment pass failed", "error", err)
				}
			}

			app.WaitForShutdown()
			cancel()
			app.Shutdown()
			return nil
		},
	}

	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run one enrichment pass immediately after startup")

	return cmd
}
