package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/pipeline"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge signatures, step states and processed links past retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			// Retention only needs config and store, not the feed surfaces.
			p := pipeline.New(a.cfg, nil, nil, a.store, nil, a.clock)
			return p.Cleanup()
		},
	}
}
