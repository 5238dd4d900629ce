package handlers

import (
	"github.com/spf13/cobra"

	"riskradar/internal/digest"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
)

func newDigestCmd() *cobra.Command {
	var (
		date   string
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build or update the daily digests",
		Long: `Generate the per-topic digests for a date from the summaries already
in the database. Topics with an existing digest are updated incrementally;
topics without one get a full digest. Defaults to today and all topics
with summaries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			oracle, err := llm.NewClient(cmd.Context(), a.cfg.Models.Nano, a.cfg.Models.Mini, a.cfg.Models.Analysis)
			if err != nil {
				return err
			}

			builder := digest.New(a.store, oracle, a.clock, a.cfg.Location())
			result, err := builder.Run(cmd.Context(), date, topics)
			if err != nil {
				return err
			}
			for _, d := range result.Digests {
				logger.Info("Digest", "topic", d.Topic, "type", d.GenerationType,
					"new_articles", d.NewArticles)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "digest date as YYYY-MM-DD (default today)")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "restrict to specific topics")
	return cmd
}
