package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/logger"
	"riskradar/internal/runstate"
)

func newFilterCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Classify pending candidates and apply the selection gate",
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
			if runID == "" {
				runID = runstate.NewRunID()
			}
			counts, err := p.Filter(cmd.Context(), runID)
			if err != nil {
				return err
			}
			logger.Info("Filtering finished", "run_id", runID,
				"classified", counts.Articles, "matched", counts.Matches)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "attach results to an existing run")
	return cmd
}
