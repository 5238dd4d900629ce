// Package handlers wires the CLI commands to the pipeline.
package handlers

import (
	"context"

	"github.com/spf13/cobra"

	"riskradar/internal/clock"
	"riskradar/internal/config"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
	"riskradar/internal/pipeline"
	"riskradar/internal/store"
)

var (
	flagConfig string
	flagDB     string
	flagFeeds  string
	flagTopics string
	flagDebug  bool
	flagLimit  int
)

var rootCmd = &cobra.Command{
	Use:   "riskradar",
	Short: "Swiss business news monitoring for credit-risk signals",
	Long: `riskradar collects Swiss business news from RSS feeds, sitemaps and
listing pages, filters it against configured risk topics, extracts and
summarizes the matching articles and maintains an incremental daily digest.

Running without a subcommand executes the full pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), "", false)
	},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "pipeline config file (default config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagFeeds, "feeds", "feeds.yaml", "feed sources file")
	rootCmd.PersistentFlags().StringVar(&flagTopics, "topics", "topics.yaml", "topics file")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&flagLimit, "limit", 0, "cap per-step item counts (0 = no cap)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newFilterCmd())
	rootCmd.AddCommand(newScrapeCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newDigestCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newCleanupCmd())

	return rootCmd.Execute()
}

// app bundles what every command needs open.
type app struct {
	cfg   *config.Config
	store *store.Store
	clock clock.Clock
}

func openApp() (*app, error) {
	logger.Init(flagDebug)

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, store: st, clock: clock.Real{}}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Failed to close store", "error", err.Error())
	}
}

// pipelineFor assembles a pipeline. withOracle controls whether the LLM
// client is created; collection-only commands do not need an API key.
func (a *app) pipelineFor(ctx context.Context, withOracle bool) (*pipeline.Pipeline, error) {
	feeds, err := config.LoadFeeds(flagFeeds)
	if err != nil {
		return nil, err
	}
	topics, err := config.LoadTopics(flagTopics)
	if err != nil {
		return nil, err
	}

	var oracle *llm.Client
	if withOracle {
		oracle, err = llm.NewClient(ctx, a.cfg.Models.Nano, a.cfg.Models.Mini, a.cfg.Models.Analysis)
		if err != nil {
			return nil, err
		}
	}

	p := pipeline.New(a.cfg, topics, feeds, a.store, oracle, a.clock)
	p.Limit = flagLimit
	return p, nil
}
