// Package pipeline wires the steps into the five-stage run: collection,
// filtering, scraping, summarization, analysis.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riskradar/internal/classify"
	"riskradar/internal/clock"
	"riskradar/internal/cluster"
	"riskradar/internal/collect"
	"riskradar/internal/config"
	"riskradar/internal/core"
	"riskradar/internal/dedup"
	"riskradar/internal/digest"
	"riskradar/internal/extract"
	"riskradar/internal/fetch"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
	"riskradar/internal/runstate"
	"riskradar/internal/selection"
	"riskradar/internal/store"
	"riskradar/internal/summarize"
)

// expressThreshold is the candidate count at or below which the classifier
// runs in express mode.
const expressThreshold = 15

// Pipeline holds the shared dependencies of a run.
type Pipeline struct {
	cfg     *config.Config
	topics  *config.TopicsConfig
	feeds   *config.FeedsConfig
	store   *store.Store
	oracle  *llm.Client
	clock   clock.Clock
	manager *runstate.Manager

	// Limit optionally caps per-step item counts (CLI --limit).
	Limit int
}

// New assembles a pipeline.
func New(cfg *config.Config, topics *config.TopicsConfig, feeds *config.FeedsConfig,
	st *store.Store, oracle *llm.Client, clk clock.Clock) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		topics:  topics,
		feeds:   feeds,
		store:   st,
		oracle:  oracle,
		clock:   clk,
		manager: runstate.New(st, clk),
	}
}

// Manager exposes the run manager for signal wiring.
func (p *Pipeline) Manager() *runstate.Manager {
	return p.manager
}

func (p *Pipeline) fetchClient(crawlDelay bool) *fetch.Client {
	opts := fetch.Options{
		UserAgent:      p.cfg.HTTP.UserAgent,
		AcceptLanguage: p.cfg.HTTP.AcceptLanguage,
		Timeout:        p.cfg.RequestTimeout(),
		RespectRobots:  p.cfg.HTTP.RespectRobots,
	}
	if crawlDelay {
		opts.CrawlDelay = time.Duration(p.cfg.HTTP.CrawlDelaySec * float64(time.Second))
	}
	return fetch.NewClient(opts)
}

// Run executes the full pipeline for runID. With resume set, completed
// steps of the run are skipped and execution restarts at the earliest
// unfinished one.
func (p *Pipeline) Run(ctx context.Context, runID string, resume bool) error {
	if err := p.manager.Begin(runID); err != nil {
		return err
	}

	start := core.StepOrder[0]
	if resume {
		next, ok, err := p.manager.NextResumableStep(runID)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("Run already completed", "run_id", runID)
			return nil
		}
		start = next
		logger.Info("Resuming run", "run_id", runID, "step", string(start))
	}

	active := false
	for _, step := range core.StepOrder {
		if step == start {
			active = true
		}
		if !active {
			continue
		}
		if err := p.manager.RunStep(ctx, runID, step, p.stepFunc(runID, step)); err != nil {
			return err
		}
	}

	p.logFunnel(runID)
	return nil
}

func (p *Pipeline) stepFunc(runID string, step core.StepName) func(ctx context.Context) (runstate.StepCounts, error) {
	switch step {
	case core.StepCollection:
		return func(ctx context.Context) (runstate.StepCounts, error) { return p.Collect(ctx) }
	case core.StepFiltering:
		return func(ctx context.Context) (runstate.StepCounts, error) { return p.Filter(ctx, runID) }
	case core.StepScraping:
		return func(ctx context.Context) (runstate.StepCounts, error) { return p.Scrape(ctx) }
	case core.StepSummarization:
		return func(ctx context.Context) (runstate.StepCounts, error) { return p.Summarize(ctx) }
	default:
		return func(ctx context.Context) (runstate.StepCounts, error) { return p.Analyze(ctx) }
	}
}

// Collect runs feed collection.
func (p *Pipeline) Collect(ctx context.Context) (runstate.StepCounts, error) {
	collector := collect.New(p.fetchClient(true), p.store, p.feeds, p.clock,
		p.cfg.Location(), p.cfg.HTTP.MaxItemsPerFeed)
	result, err := collector.Run(ctx)
	if err != nil {
		return runstate.StepCounts{}, err
	}

	counts := runstate.StepCounts{Articles: result.Inserted}
	if meta, err := json.Marshal(result.PerSourceStats); err == nil {
		counts.Metadata = string(meta)
	}
	return counts, nil
}

// Filter classifies candidates for every enabled topic, then applies the
// selection gate.
func (p *Pipeline) Filter(ctx context.Context, runID string) (runstate.StepCounts, error) {
	classifier := classify.New(p.store, p.oracle, p.clock, p.cfg.Location(), p.cfg.Pipeline.Workers)

	var classified, matched int
	for name, topic := range p.topics.Topics {
		mode, err := p.classifyMode(topic)
		if err != nil {
			return runstate.StepCounts{}, err
		}
		result, err := classifier.Run(ctx, runID, name, topic, mode)
		if err != nil {
			return runstate.StepCounts{}, fmt.Errorf("classification for topic %s failed: %w", name, err)
		}
		classified += result.Classified
		matched += result.Matched
	}

	maxItems := p.cfg.Pipeline.Filtering.MaxArticlesToProcess
	if p.Limit > 0 && p.Limit < maxItems {
		maxItems = p.Limit
	}
	gate := selection.New(p.store, p.cfg.Pipeline.Filtering.ConfidenceThreshold, maxItems)
	if _, err := gate.Run(runID); err != nil {
		return runstate.StepCounts{Articles: classified, Matches: matched}, err
	}
	return runstate.StepCounts{Articles: classified, Matches: matched}, nil
}

func (p *Pipeline) classifyMode(topic config.TopicConfig) (classify.Mode, error) {
	if topic.SkipPrefilter {
		return classify.ModeSkipPrefilter, nil
	}
	pending, err := p.store.UnclassifiedItems(expressThreshold + 1)
	if err != nil {
		return "", err
	}
	if len(pending) <= expressThreshold {
		return classify.ModeExpress, nil
	}
	return classify.ModeStandard, nil
}

// Scrape extracts article text for the selected items.
func (p *Pipeline) Scrape(ctx context.Context) (runstate.StepCounts, error) {
	var browser *extract.BrowserClient
	if p.cfg.Browser.Endpoint != "" {
		browser = extract.NewBrowserClient(p.cfg.Browser.Endpoint,
			time.Duration(p.cfg.Browser.NavigateTimeout)*time.Second, p.cfg.Browser.RecycleEvery)
	}

	extractor := extract.New(p.store, p.fetchClient(true), browser, p.clock, p.cfg.HTTP.SkipGNewsRedirect)
	result, err := extractor.Run(ctx, p.Limit)
	if err != nil {
		return runstate.StepCounts{}, err
	}
	return runstate.StepCounts{Articles: result.Extracted}, nil
}

// Summarize produces structured summaries for the scraped items.
func (p *Pipeline) Summarize(ctx context.Context) (runstate.StepCounts, error) {
	summarizer := summarize.New(p.store, p.oracle, p.clock, p.cfg.Models.Mini, p.cfg.Pipeline.Workers)
	result, err := summarizer.Run(ctx, p.Limit)
	if err != nil {
		return runstate.StepCounts{}, err
	}
	return runstate.StepCounts{Articles: result.Summarized}, nil
}

// Analyze clusters today's titles, deduplicates across runs and evolves the
// digests.
func (p *Pipeline) Analyze(ctx context.Context) (runstate.StepCounts, error) {
	loc := p.cfg.Location()

	clusterer := cluster.New(p.store, p.oracle, p.clock, loc)
	if _, err := clusterer.Run(ctx); err != nil {
		return runstate.StepCounts{}, err
	}

	deduplicator := dedup.New(p.store, p.oracle, p.clock, loc)
	dresult, err := deduplicator.Run(ctx)
	if err != nil {
		return runstate.StepCounts{}, err
	}

	builder := digest.New(p.store, p.oracle, p.clock, loc)
	bresult, err := builder.Run(ctx, "", nil)
	if err != nil {
		return runstate.StepCounts{}, err
	}

	newArticles := 0
	for _, d := range bresult.Digests {
		newArticles += d.NewArticles
	}
	return runstate.StepCounts{Articles: newArticles, Matches: dresult.Unique}, nil
}

// Cleanup purges rows past their retention windows.
func (p *Pipeline) Cleanup() error {
	now := p.clock.Now()

	cutoffDate := store.SignatureRetentionCutoff(now.In(p.cfg.Location()), p.cfg.Retention.SignatureDays)
	sigs, err := p.store.PurgeSignaturesBefore(cutoffDate)
	if err != nil {
		return err
	}

	cutoff := now.AddDate(0, 0, -p.cfg.Retention.StepStateDays)
	steps, err := p.store.PurgeStepStatesBefore(cutoff)
	if err != nil {
		return err
	}
	links, err := p.store.PurgeProcessedLinksBefore(cutoff)
	if err != nil {
		return err
	}

	logger.Info("Cleanup complete", "signatures", sigs, "step_states", steps, "processed_links", links)
	return nil
}

// logFunnel reports the per-stage counts of the finished run.
func (p *Pipeline) logFunnel(runID string) {
	counts, err := p.store.FunnelCounts(runID)
	if err != nil {
		logger.Error("Failed to compute funnel", err, "run_id", runID)
		return
	}
	logger.Info("Run funnel", "run_id", runID,
		"matched", counts[core.StageMatched]+counts[core.StageMatchedNotChosen]+counts[core.StageSelected]+counts[core.StageScraped]+counts[core.StageSummarized],
		"selected", counts[core.StageSelected]+counts[core.StageScraped]+counts[core.StageSummarized],
		"scraped", counts[core.StageScraped]+counts[core.StageSummarized],
		"summarized", counts[core.StageSummarized])
}
