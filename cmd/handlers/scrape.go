package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/logger"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Extract article text for the selected items",
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
			counts, err := p.Scrape(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Scraping finished", "extracted", counts.Articles)
			return nil
		},
	}
}
