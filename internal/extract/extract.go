// Package extract fetches selected articles and pulls out their main text.
// A fast heuristic pass handles most pages; a headless-browser sidecar
// covers script-rendered ones.
package extract

import (
	"context"
	"fmt"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/fetch"
	"riskradar/internal/logger"
)

// minArticleChars is the final acceptance gate: anything shorter is not an
// article body worth summarizing.
const minArticleChars = 600

// Store is the extractor's slice of the store.
type Store interface {
	ItemsNeedingExtraction() ([]core.Item, error)
	SaveExtractedArticle(a core.ExtractedArticle) error
	RecordExtractionFailure(itemID int64, reason string, now time.Time) error
}

// Extractor runs the scraping step. Items are processed sequentially: the
// crawl delay and the single browser session both rule out parallelism here.
type Extractor struct {
	store          Store
	client         *fetch.Client
	browser        *BrowserClient
	resolver       *Resolver
	clock          clock.Clock
	skipAggregator bool
}

// New creates an extractor. browser may be nil to disable the fallback.
func New(store Store, client *fetch.Client, browser *BrowserClient, clk clock.Clock, skipAggregator bool) *Extractor {
	return &Extractor{
		store:          store,
		client:         client,
		browser:        browser,
		resolver:       NewResolver(client, browser),
		clock:          clk,
		skipAggregator: skipAggregator,
	}
}

// Result summarizes one extraction run.
type Result struct {
	Candidates int
	Extracted  int
	Failed     int
	Skipped    int
}

// Run extracts every selected item without a stored article. Failures are
// recorded and the item stays retriable; the run continues.
func (e *Extractor) Run(ctx context.Context, limit int) (*Result, error) {
	items, err := e.store.ItemsNeedingExtraction()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	result := &Result{Candidates: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if e.skipAggregator && IsAggregatorURL(item.RawURL) {
			result.Skipped++
			logger.Debug("Skipping aggregator redirector", "item_id", item.ID, "url", item.RawURL)
			continue
		}

		if err := e.extractOne(ctx, item); err != nil {
			result.Failed++
			logger.Warn("Extraction failed", "item_id", item.ID, "error", err.Error())
			if rerr := e.store.RecordExtractionFailure(item.ID, err.Error(), e.clock.Now()); rerr != nil {
				logger.Error("Failed to record extraction failure", rerr, "item_id", item.ID)
			}
			continue
		}
		result.Extracted++
	}

	logger.Info("Extraction complete", "candidates", result.Candidates,
		"extracted", result.Extracted, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (e *Extractor) extractOne(ctx context.Context, item core.Item) error {
	target := item.RawURL
	if IsAggregatorURL(target) {
		resolved, err := e.resolver.Resolve(ctx, target)
		if err != nil {
			return fmt.Errorf("redirector resolution failed: %w", err)
		}
		logger.Debug("Resolved redirector", "item_id", item.ID, "target", resolved)
		target = resolved
	}

	text, method, err := e.extractText(ctx, target)
	if err != nil {
		return err
	}
	if len(text) < minArticleChars {
		return fmt.Errorf("extracted text too short (%d chars)", len(text))
	}

	return e.store.SaveExtractedArticle(core.ExtractedArticle{
		ItemID:           item.ID,
		ExtractedText:    text,
		ExtractionMethod: method,
		ExtractedAt:      e.clock.Now(),
	})
}

// extractText runs the heuristic pass and falls back to the browser when
// the page yields too little text.
func (e *Extractor) extractText(ctx context.Context, target string) (string, core.ExtractionMethod, error) {
	html, err := e.client.Get(ctx, target)
	if err != nil {
		return "", "", fmt.Errorf("fetch failed: %w", err)
	}

	text, err := ExtractArticleText(html)
	if err == nil && len(text) >= heuristicMinChars {
		return text, core.ExtractionHeuristic, nil
	}

	if e.browser == nil {
		if err != nil {
			return "", "", err
		}
		return text, core.ExtractionHeuristic, nil
	}

	browserText, berr := e.browser.ExtractText(ctx, target)
	if berr != nil {
		// Keep whatever the heuristic produced; the length gate decides.
		if err != nil {
			return "", "", fmt.Errorf("browser fallback failed after parse error: %w", berr)
		}
		return text, core.ExtractionHeuristic, nil
	}
	return browserText, core.ExtractionBrowser, nil
}
