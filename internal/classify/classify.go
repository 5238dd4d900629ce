// Package classify runs the per-topic relevance gate: prioritized
// candidates are sent to the oracle one by one, decisions are memoized per
// (url_hash, topic) and written back onto the items.
package classify

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"riskradar/internal/clock"
	"riskradar/internal/config"
	"riskradar/internal/core"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
)

// Mode selects the candidate window and the per-mode cap.
type Mode string

const (
	ModeExpress       Mode = "express"
	ModeStandard      Mode = "standard"
	ModeSkipPrefilter Mode = "skip_prefilter"
	ModeForceRefresh  Mode = "force_refresh"
)

const (
	expressCap  = 50
	standardCap = 100

	// fetchLimit bounds the candidate pull before scoring.
	fetchLimit = 500

	// forceRefreshWindow is how far back force_refresh reconsiders items.
	forceRefreshWindow = 3 * 24 * time.Hour
)

// Oracle is the classifier's slice of the chat oracle.
type Oracle interface {
	Triage(ctx context.Context, description string, keywords []string,
		focusAreas map[string][]string, req llm.TriageRequest) (llm.TriageVerdict, error)
}

// Store is the classifier's slice of the store.
type Store interface {
	UnclassifiedItems(limit int) ([]core.Item, error)
	RecentItems(since time.Time, limit int) ([]core.Item, error)
	GetProcessedLink(urlHash, topic string) (*core.ProcessedLink, error)
	UpsertProcessedLink(link core.ProcessedLink) error
	UpdateItemTriage(id int64, topic string, confidence float64, isMatch bool, runID string) error
}

// Classifier triages collected items for one topic.
type Classifier struct {
	store   Store
	oracle  Oracle
	clock   clock.Clock
	loc     *time.Location
	workers int
}

// New creates a classifier.
func New(store Store, oracle Oracle, clk clock.Clock, loc *time.Location, workers int) *Classifier {
	if workers < 1 {
		workers = 1
	}
	return &Classifier{store: store, oracle: oracle, clock: clk, loc: loc, workers: workers}
}

// Result summarizes one classification run.
type Result struct {
	Considered int
	Classified int
	Memoized   int
	Matched    int
	Rejected   int
	Errors     int
}

// Run classifies the candidate window for one topic. Single-item failures
// are recorded as errors and treated as no-match; the run continues.
func (c *Classifier) Run(ctx context.Context, runID, topicName string, topic config.TopicConfig, mode Mode) (*Result, error) {
	candidates, err := c.candidates(mode)
	if err != nil {
		return nil, err
	}
	candidates = c.filterByAge(candidates, topic.MaxArticleAgeDays)

	now := c.clock.Now()
	sort.SliceStable(candidates, func(i, j int) bool {
		return PriorityScore(candidates[i], now) > PriorityScore(candidates[j], now)
	})

	if limit := modeCap(mode); limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	// The topic's own per-run cap tightens the mode cap, never widens it.
	if topic.MaxArticlesPerRun > 0 && len(candidates) > topic.MaxArticlesPerRun {
		candidates = candidates[:topic.MaxArticlesPerRun]
	}

	result := &Result{Considered: len(candidates)}
	var mu sync.Mutex
	matched := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, item := range candidates {
		if gctx.Err() != nil {
			break
		}
		mu.Lock()
		terminated := topic.Thresholds.EarlyTerminationAt > 0 && matched >= topic.Thresholds.EarlyTerminationAt
		mu.Unlock()
		if terminated {
			logger.Info("Early termination threshold reached",
				"topic", topicName, "matches", matched)
			break
		}

		item := item
		g.Go(func() error {
			outcome := c.classifyOne(gctx, runID, topicName, topic, item)
			mu.Lock()
			defer mu.Unlock()
			result.Classified++
			if outcome.memoized {
				result.Memoized++
			}
			switch outcome.result {
			case core.TriageMatched:
				result.Matched++
				matched++
			case core.TriageRejected:
				result.Rejected++
			case core.TriageError:
				result.Errors++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	logger.Info("Classification complete", "topic", topicName, "mode", string(mode),
		"considered", result.Considered, "matched", result.Matched,
		"rejected", result.Rejected, "memoized", result.Memoized, "errors", result.Errors)
	return result, nil
}

func (c *Classifier) candidates(mode Mode) ([]core.Item, error) {
	if mode == ModeForceRefresh {
		return c.store.RecentItems(c.clock.Now().Add(-forceRefreshWindow), fetchLimit)
	}
	return c.store.UnclassifiedItems(fetchLimit)
}

func modeCap(mode Mode) int {
	switch mode {
	case ModeExpress:
		return expressCap
	case ModeSkipPrefilter:
		return 0
	default:
		return standardCap
	}
}

// filterByAge applies the topic's article-age window. Zero means published
// today in local wall-clock time; N>0 means within the last N days counted
// from local midnight. Items without a published date fall back to first
// seen.
func (c *Classifier) filterByAge(items []core.Item, maxAgeDays int) []core.Item {
	cutoff := clock.StartOfDay(c.clock, c.loc)
	if maxAgeDays > 0 {
		cutoff = cutoff.AddDate(0, 0, -maxAgeDays)
	}

	var kept []core.Item
	for _, item := range items {
		ref := item.FirstSeenAt
		if item.PublishedAt != nil {
			ref = *item.PublishedAt
		}
		if !ref.In(c.loc).Before(cutoff) {
			kept = append(kept, item)
		}
	}
	return kept
}

type outcome struct {
	result   core.TriageResult
	memoized bool
}

// classifyOne resolves one candidate: memoized decisions are reused,
// everything else goes to the oracle. Errors become a no-match verdict with
// an error ProcessedLink so a later run retries.
func (c *Classifier) classifyOne(ctx context.Context, runID, topicName string, topic config.TopicConfig, item core.Item) outcome {
	if link, err := c.store.GetProcessedLink(item.URLHash, topicName); err != nil {
		logger.Error("Failed to look up processed link", err, "item_id", item.ID)
	} else if link != nil && link.Result != core.TriageError {
		isMatch := link.Result == core.TriageMatched
		if err := c.store.UpdateItemTriage(item.ID, topicName, link.Confidence, isMatch, runID); err != nil {
			logger.Error("Failed to apply memoized triage", err, "item_id", item.ID)
			return outcome{result: core.TriageError}
		}
		return outcome{result: link.Result, memoized: true}
	}

	verdict, err := c.triage(ctx, topicName, topic, item)
	result := core.TriageRejected
	if err != nil {
		logger.Warn("Triage failed, treating as no-match", "item_id", item.ID, "error", err.Error())
		verdict = llm.TriageVerdict{IsMatch: false, Confidence: 0, Topic: topicName}
		result = core.TriageError
	} else if verdict.IsMatch {
		result = core.TriageMatched
	}

	link := core.ProcessedLink{
		URLHash:     item.URLHash,
		URL:         item.NormalizedURL,
		Topic:       topicName,
		ProcessedAt: c.clock.Now(),
		Result:      result,
		Confidence:  verdict.Confidence,
	}
	if err := c.store.UpsertProcessedLink(link); err != nil {
		logger.Error("Failed to persist processed link", err, "item_id", item.ID)
	}
	if err := c.store.UpdateItemTriage(item.ID, topicName, verdict.Confidence, verdict.IsMatch, runID); err != nil {
		logger.Error("Failed to update item triage", err, "item_id", item.ID)
		return outcome{result: core.TriageError}
	}
	return outcome{result: result}
}

// triage invokes the oracle and enforces the topic's confidence threshold.
func (c *Classifier) triage(ctx context.Context, topicName string, topic config.TopicConfig, item core.Item) (llm.TriageVerdict, error) {
	req := llm.TriageRequest{
		Title:         item.Title,
		URL:           item.NormalizedURL,
		Topic:         topicName,
		PriorityScore: PriorityScore(item, c.clock.Now()),
		SourceTier:    sourceTierOf(item),
	}

	verdict, err := c.oracle.Triage(ctx, topic.Description, topic.Include, focusKeywords(topic), req)
	if err != nil {
		return llm.TriageVerdict{}, err
	}

	if verdict.IsMatch && verdict.Confidence < topic.ConfidenceThreshold {
		verdict.IsMatch = false
		verdict.Reason = fmt.Sprintf("Below confidence threshold %.2f", topic.ConfidenceThreshold)
	}
	return verdict, nil
}

func sourceTierOf(item core.Item) float64 {
	u, err := url.Parse(item.NormalizedURL)
	if err != nil {
		return tierUnknown
	}
	return SourceTier(u.Host)
}

func focusKeywords(topic config.TopicConfig) map[string][]string {
	if len(topic.FocusAreas) == 0 {
		return nil
	}
	areas := make(map[string][]string, len(topic.FocusAreas))
	for name, area := range topic.FocusAreas {
		areas[name] = area.Keywords
	}
	return areas
}
