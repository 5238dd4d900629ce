package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.store.GetStats()
			if err != nil {
				return err
			}

			fmt.Printf("Items:       %d\n", stats.ItemCount)
			fmt.Printf("Extracted:   %d\n", stats.ExtractedCount)
			fmt.Printf("Summaries:   %d\n", stats.SummaryCount)
			fmt.Printf("Clusters:    %d\n", stats.ClusterCount)
			fmt.Printf("Signatures:  %d\n", stats.SignatureCount)
			fmt.Printf("Digests:     %d\n", stats.DigestCount)
			fmt.Printf("DB size:     %.1f KB\n", float64(stats.DBSize)/1024)
			if !stats.LastUpdated.IsZero() {
				fmt.Printf("Last update: %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
