package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/logger"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Collect article candidates from the configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipelineFor(cmd.Context(), false)
			if err != nil {
				return err
			}
			counts, err := p.Collect(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Collection finished", "inserted", counts.Articles)
			return nil
		},
	}
}
