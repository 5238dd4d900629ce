package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"riskradar/internal/logger"
	"riskradar/internal/runstate"
)

func newRunCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full pipeline",
		Long: `Run all five steps in order: collection, filtering, scraping,
summarization and analysis. Each step checkpoints its state, so an
interrupted run can be resumed with --run-id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), runID, runID != "")
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "resume an interrupted run")
	return cmd
}

func runPipeline(ctx context.Context, runID string, resume bool) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipelineFor(ctx, true)
	if err != nil {
		return err
	}

	if runID == "" {
		runID = runstate.NewRunID()
	}
	logger.Info("Pipeline starting", "run_id", runID, "resume", resume)

	ctx, stop := p.Manager().WithInterrupt(ctx)
	defer stop()

	if err := p.Run(ctx, runID, resume); err != nil {
		if errors.Is(err, context.Canceled) {
			// Pause synchronously so the write lands before the process exits.
			p.Manager().PauseInterrupted(runID)
			return fmt.Errorf("run %s interrupted; resume with --run-id %s", runID, runID)
		}
		return err
	}
	return nil
}
