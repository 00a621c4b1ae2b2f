package cmd

import (
	"context"
	"fmt"
	"time"

	"threatharvest/core"
	"threatharvest/enrich"

	"github.com/spf13/cobra"
)

// newRunCmd creates the 'run' subcommand: one enrichment pass, then exit.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one enrichment pass",
		Long:  "Fetch all configured sources, classify and persist the results, and merge them into the knowledge base.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			summary, runErr := env.service.Run(ctx)

			if outputJSON && summary != nil {
				if err := outputAsJSON(summary); err != nil {
					return err
				}
				return runErr
			}

			if summary != nil {
				renderSummary(summary)
			}
			if runErr != nil {
				return fmt.Errorf("enrichment pass failed: %w", runErr)
			}
			return nil
		},
	}
}

func renderSummary(summary *enrich.Summary) {
	if summary.Status == core.RunStatusCompleted {
		successColor.Printf("Enrichment pass %s", summary.Status)
	} else {
		errorColor.Printf("Enrichment pass %s", summary.Status)
	}
	fmt.Printf(" in %s (run #%d)\n", summary.Duration.Round(time.Millisecond), summary.RunID)
	if summary.Message != "" {
		infoColor.Printf("  %s\n", summary.Message)
	}
	fmt.Printf("  %-12s %d\n", "Sources", summary.SourcesCount)
	fmt.Printf("  %-12s %d\n", "Fetched", summary.EntriesFetched)
	fmt.Printf("  %-12s %d\n", "Processed", summary.EntriesProcessed)
	fmt.Printf("  %-12s %d\n", "Inserted", summary.EntriesInserted)
	fmt.Printf("  %-12s %d\n", "Added to KB", summary.EntriesAddedToKB)
}
