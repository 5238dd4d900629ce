package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/logger"
)

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize",
		Short: "Summarize scraped articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.pipelineFor(cmd.Context(), true)
			if err != nil {
				return err
			}
			counts, err := p.Summarize(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("Summarization finished", "summarized", counts.Articles)
			return nil
		},
	}
}
