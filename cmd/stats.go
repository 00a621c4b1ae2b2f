package cmd

import (
	"fmt"
	"sort"

	"threatharvest/core"

	"github.com/spf13/cobra"
)

// newStatsCmd creates the 'stats' subcommand.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show threat store statistics",
		Long:  "Display aggregate counts of stored threats by category, attack vector, severity, and source.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, cleanup, err := initEnv()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := env.threats.Statistics()
			if err != nil {
				return fmt.Errorf("failed to load statistics: %w", err)
			}

			if outputJSON {
				return outputAsJSON(stats)
			}

			headerColor.Println("Threat store statistics")
			fmt.Printf("  %-16s %d\n", "Total threats", stats.Total)
			fmt.Printf("  %-16s %d\n", "In KB", stats.AddedToKB)

			renderCountsByLabel("By category", stats.ByCategory, core.ThreatCategories)
			renderCountsByLabel("By vector", stats.ByVector, core.AttackVectors)

			if len(stats.BySeverity) > 0 {
				infoColor.Println("By severity")
				for sev := 1; sev <= 10; sev++ {
					if count, ok := stats.BySeverity[sev]; ok {
						fmt.Printf("  %-20s %d\n", fmt.Sprintf("severity %d", sev), count)
					}
				}
			}

			if len(stats.BySource) > 0 {
				infoColor.Println("By source")
				sources := make([]string, 0, len(stats.BySource))
				for source := range stats.BySource {
					sources = append(sources, source)
				}
				sort.Strings(sources)
				for _, source := range sources {
					fmt.Printf("  %-20s %d\n", source, stats.BySource[source])
				}
			}

			return nil
		},
	}
}

// renderCountsByLabel prints non-zero counts in vocabulary order.
func renderCountsByLabel(title string, counts map[string]int, order []string) {
	if len(counts) == 0 {
		return
	}
	infoColor.Println(title)
	for _, label := range order {
		if count, ok := counts[label]; ok {
			fmt.Printf("  %-20s %d\n", label, count)
		}
	}
}
