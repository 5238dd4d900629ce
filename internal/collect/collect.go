// Package collect pulls candidate article metadata from feed, sitemap,
// JSON-API and HTML-listing sources, deduplicates within the batch and
// inserts new items.
package collect

import (
	"context"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/config"
	"riskradar/internal/core"
	"riskradar/internal/fetch"
	"riskradar/internal/logger"
	"riskradar/internal/urlutil"
)

// nearDuplicateThreshold is the intra-source title Jaccard cutoff.
const nearDuplicateThreshold = 0.9

// Candidate is one discovered article before normalization.
type Candidate struct {
	Source      string
	RawURL      string
	Title       string
	PublishedAt *time.Time
}

// Store is the slice of the store the collector needs.
type Store interface {
	InsertItems(items []core.Item) (int, error)
}

// Collector runs the collection step.
type Collector struct {
	client *fetch.Client
	store  Store
	feeds  *config.FeedsConfig
	clock  clock.Clock
	loc    *time.Location
	maxPer int
}

// New creates a collector.
func New(client *fetch.Client, store Store, feeds *config.FeedsConfig, clk clock.Clock, loc *time.Location, maxItemsPerFeed int) *Collector {
	return &Collector{
		client: client,
		store:  store,
		feeds:  feeds,
		clock:  clk,
		loc:    loc,
		maxPer: maxItemsPerFeed,
	}
}

// Result summarizes one collection run.
type Result struct {
	SourcesTried   int
	SourcesFailed  int
	Candidates     int
	Deduplicated   int
	Inserted       int
	PerSourceStats map[string]int
}

// Run fetches every configured source, swallowing per-source failures, and
// inserts the surviving candidates. Per-source failures never abort the run.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	result := &Result{PerSourceStats: make(map[string]int)}
	var all []Candidate

	gather := func(source string, candidates []Candidate, err error) {
		result.SourcesTried++
		if err != nil {
			result.SourcesFailed++
			logger.Warn("Source failed, continuing", "source", source, "error", err.Error())
			return
		}
		if c.maxPer > 0 && len(candidates) > c.maxPer {
			candidates = candidates[:c.maxPer]
		}
		result.PerSourceStats[source] = len(candidates)
		all = append(all, candidates...)
	}

	for source, urls := range c.feeds.RSS {
		for _, u := range urls {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			candidates, err := c.fetchFeed(ctx, source, u)
			gather(source, candidates, err)
		}
	}
	for source, urls := range c.feeds.AdditionalRSS {
		for _, u := range urls {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			candidates, err := c.fetchFeed(ctx, source, u)
			gather(source, candidates, err)
		}
	}
	for _, u := range c.feeds.GoogleNewsRSS {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		candidates, err := c.fetchFeed(ctx, "google_news", u)
		gather("google_news", candidates, err)
	}
	for source, urls := range c.feeds.Sitemaps {
		for _, u := range urls {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			candidates, err := c.fetchSitemap(ctx, source, u)
			gather(source, candidates, err)
		}
	}
	for source, src := range c.feeds.JSON {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		candidates, err := c.fetchJSONAPI(ctx, source, src)
		gather(source, candidates, err)
	}
	for source, src := range c.feeds.HTML {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		candidates, err := c.fetchHTMLListing(ctx, source, src)
		gather(source, candidates, err)
	}

	result.Candidates = len(all)

	items := c.dedupeBatch(all)
	result.Deduplicated = result.Candidates - len(items)

	inserted, err := c.store.InsertItems(items)
	if err != nil {
		return result, err
	}
	result.Inserted = inserted

	logger.Info("Collection complete",
		"sources", result.SourcesTried, "failed", result.SourcesFailed,
		"candidates", result.Candidates, "inserted", result.Inserted)
	return result, nil
}

func (c *Collector) fetchFeed(ctx context.Context, source, u string) ([]Candidate, error) {
	data, notModified, err := c.client.GetConditional(ctx, u)
	if err != nil {
		return nil, err
	}
	if notModified {
		logger.Debug("Feed unchanged since last fetch", "source", source, "url", u)
		return nil, nil
	}
	return parseFeed(source, data, c.loc)
}

func (c *Collector) fetchSitemap(ctx context.Context, source, u string) ([]Candidate, error) {
	data, notModified, err := c.client.GetConditional(ctx, u)
	if err != nil {
		return nil, err
	}
	if notModified {
		logger.Debug("Sitemap unchanged since last fetch", "source", source, "url", u)
		return nil, nil
	}
	return parseSitemap(source, data, c.loc)
}

func (c *Collector) fetchJSONAPI(ctx context.Context, source string, src config.JSONSource) ([]Candidate, error) {
	data, err := c.client.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return parseJSONAPI(source, data, src, c.loc)
}

func (c *Collector) fetchHTMLListing(ctx context.Context, source string, src config.HTMLSource) ([]Candidate, error) {
	data, err := c.client.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	return parseHTMLListing(source, data, src, c.loc)
}

// dedupeBatch normalizes candidates, drops exact url_hash duplicates across
// the whole batch, then drops near-duplicate titles within the same source.
func (c *Collector) dedupeBatch(candidates []Candidate) []core.Item {
	seenHash := make(map[string]bool)
	acceptedTitles := make(map[string][]string) // source -> accepted titles
	now := c.clock.Now()

	var items []core.Item
	for _, cand := range candidates {
		normalized, hash, err := urlutil.NormalizeAndHash(cand.RawURL)
		if err != nil {
			logger.Debug("Dropping unparsable URL", "url", cand.RawURL, "error", err.Error())
			continue
		}
		if seenHash[hash] {
			continue
		}

		if cand.Title != "" {
			duplicate := false
			for _, accepted := range acceptedTitles[cand.Source] {
				if urlutil.TitleJaccard(cand.Title, accepted) >= nearDuplicateThreshold {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			acceptedTitles[cand.Source] = append(acceptedTitles[cand.Source], cand.Title)
		}

		seenHash[hash] = true
		items = append(items, core.Item{
			Source:        cand.Source,
			RawURL:        cand.RawURL,
			NormalizedURL: normalized,
			URLHash:       hash,
			Title:         cand.Title,
			PublishedAt:   cand.PublishedAt,
			FirstSeenAt:   now,
			PipelineStage: core.StageCollected,
		})
	}
	return items
}
