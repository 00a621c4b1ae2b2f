package cmd

import (
	"fmt"
	"time"

	"threatharvest/core"

	"github.com/spf13/cobra"
)

// newRunsCmd creates the 'runs' subcommand.
func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show enrichment run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := env.runs.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("failed to load run history: %w", err)
			}

			if outputJSON {
				return outputAsJSON(runs)
			}

			if len(runs) == 0 {
				warningColor.Println("No enrichment runs recorded yet")
				return nil
			}

			headerColor.Printf("%-6s %-20s %-10s %-8s %-9s %-9s %-6s %s\n",
				"RUN", "STARTED", "STATUS", "SOURCES", "FETCHED", "PROCESSED", "IN KB", "ERROR")
			for _, run := range runs {
				errMsg := run.ErrorMessage
				if errMsg == "" {
					errMsg = "-"
				}
				statusColor := successColor
				if run.Status != core.RunStatusCompleted {
					statusColor = errorColor
				}
				fmt.Printf("%-6d %-20s ", run.ID, run.StartTime.Format(time.DateTime))
				statusColor.Printf("%-10s", run.Status)
				fmt.Printf(" %-8d %-9d %-9d %-6d %s\n",
					run.SourcesCount, run.EntriesFetched, run.EntriesProcessed, run.EntriesAddedToKB, errMsg)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")

	return cmd
}
