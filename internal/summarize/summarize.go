// Package summarize turns extracted article text into structured summaries
// via the oracle.
package summarize

import (
	"context"

	"golang.org/x/sync/errgroup"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
	"riskradar/internal/store"
)

// minTextChars matches the extraction acceptance gate; shorter rows are
// stale failure records and never reach the oracle.
const minTextChars = 600

// Oracle is the summarizer's slice of the chat oracle.
type Oracle interface {
	Summarize(ctx context.Context, title, url, content string) (llm.ArticleSummary, error)
}

// Store is the summarizer's slice of the store.
type Store interface {
	SummarizationCandidates(minLength int) ([]store.SummarizationCandidate, error)
	SaveSummary(sum core.Summary) error
}

// Summarizer runs the summarization step.
type Summarizer struct {
	store   Store
	oracle  Oracle
	clock   clock.Clock
	model   string
	workers int
}

// New creates a summarizer. model is recorded on every summary row.
func New(st Store, oracle Oracle, clk clock.Clock, model string, workers int) *Summarizer {
	if workers < 1 {
		workers = 1
	}
	return &Summarizer{store: st, oracle: oracle, clock: clk, model: model, workers: workers}
}

// Result summarizes one summarization run.
type Result struct {
	Candidates int
	Summarized int
	Failed     int
}

// Run summarizes every eligible article. A failed item stays at the scraped
// stage and is retried on the next run.
func (s *Summarizer) Run(ctx context.Context, limit int) (*Result, error) {
	candidates, err := s.store.SummarizationCandidates(minTextChars)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := &Result{Candidates: len(candidates)}
	results := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, candidate := range candidates {
		if gctx.Err() != nil {
			break
		}
		i, candidate := i, candidate
		g.Go(func() error {
			if err := s.summarizeOne(gctx, candidate); err != nil {
				logger.Warn("Summarization failed, item stays retriable",
					"item_id", candidate.Item.ID, "error", err.Error())
				return nil
			}
			results[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, ok := range results {
		if ok {
			result.Summarized++
		} else {
			result.Failed++
		}
	}

	logger.Info("Summarization complete", "candidates", result.Candidates,
		"summarized", result.Summarized, "failed", result.Failed)
	return result, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, candidate store.SummarizationCandidate) error {
	item := candidate.Item
	summary, err := s.oracle.Summarize(ctx, item.Title, item.NormalizedURL, candidate.Text)
	if err != nil {
		return err
	}

	return s.store.SaveSummary(core.Summary{
		ItemID:    item.ID,
		Topic:     item.TriageTopic,
		Model:     s.model,
		Summary:   summary.Summary,
		KeyPoints: summary.KeyPoints,
		Entities:  summary.Entities,
		CreatedAt: s.clock.Now(),
	})
}
