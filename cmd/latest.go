package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newLatestCmd creates the 'latest' subcommand.
func newLatestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently processed threats",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := env.threats.Latest(limit)
			if err != nil {
				return fmt.Errorf("failed to load threats: %w", err)
			}

			if outputJSON {
				return outputAsJSON(records)
			}

			if len(records) == 0 {
				warningColor.Println("No threats stored yet")
				return nil
			}

			headerColor.Printf("%-10s %-4s %-24s %-20s %s\n", "PROCESSED", "SEV", "CATEGORIES", "SOURCE", "TITLE")
			for _, rec := range records {
				categories := strings.Join(rec.ThreatCategories, ",")
				if categories == "" {
					categories = "-"
				}
				title := rec.Title
				if len(title) > 60 {
					title = title[:57] + "..."
				}
				fmt.Printf("%-10s %-4d %-24s %-20s %s\n",
					rec.ProcessedAt.Format("2006-01-02"), rec.Severity, categories, rec.Source, title)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of threats to show")

	return cmd
}
