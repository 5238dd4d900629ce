// Package dedup compares freshly summarized articles against the topic
// signatures of earlier runs the same day, so a story covered this morning
// does not re-enter the evening digest.
package dedup

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/logger"
)

// comparisonWindow is how many of the most recent prior signatures each new
// summary is compared against.
const comparisonWindow = 10

// Oracle is the deduplicator's slice of the chat oracle.
type Oracle interface {
	CompareTopics(ctx context.Context, previous []string, title, summary string) (string, error)
}

// Store is the deduplicator's slice of the store.
type Store interface {
	UncoveredSummariesBetween(start, end time.Time) ([]core.Summary, error)
	SignaturesForDate(date string) ([]core.TopicSignature, error)
	MaxRunSequence(date string) (int, error)
	InsertSignatures(sigs []core.TopicSignature) error
	MarkTopicCovered(itemID int64, signatureID string) error
	LogDeduplication(entry core.DeduplicationLogEntry) error
	ItemByID(id int64) (*core.Item, error)
}

// Deduplicator runs the cross-run topic comparison for the current day.
type Deduplicator struct {
	store  Store
	oracle Oracle
	clock  clock.Clock
	loc    *time.Location
}

// New creates a deduplicator.
func New(store Store, oracle Oracle, clk clock.Clock, loc *time.Location) *Deduplicator {
	return &Deduplicator{store: store, oracle: oracle, clock: clk, loc: loc}
}

// Result summarizes one deduplication pass.
type Result struct {
	FirstRun   bool
	Compared   int
	Duplicates int
	Unique     int
}

// Run marks cross-run duplicates among today's new summaries and stores
// signatures for the unique ones. Oracle errors never mark a duplicate: the
// safe default is UNIQUE.
func (d *Deduplicator) Run(ctx context.Context) (*Result, error) {
	date := clock.DateIn(d.clock, d.loc)
	dayStart, dayEnd, err := clock.DayBounds(date, d.loc)
	if err != nil {
		return nil, err
	}

	newSummaries, err := d.store.UncoveredSummariesBetween(dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	result := &Result{}
	if len(newSummaries) == 0 {
		logger.Debug("No new summaries to deduplicate", "date", date)
		return result, nil
	}

	prior, err := d.store.SignaturesForDate(date)
	if err != nil {
		return nil, err
	}
	maxSeq, err := d.store.MaxRunSequence(date)
	if err != nil {
		return nil, err
	}
	sequence := maxSeq + 1

	if len(prior) == 0 {
		result.FirstRun = true
		result.Unique = len(newSummaries)
		logger.Info("First run of the day, storing signatures only",
			"date", date, "count", len(newSummaries))
		return result, d.storeSignatures(date, sequence, newSummaries)
	}

	window := prior
	if len(window) > comparisonWindow {
		window = window[len(window)-comparisonWindow:]
	}
	previous := make([]string, len(window))
	for i, sig := range window {
		previous[i] = fmt.Sprintf("%s: %s", sig.TopicTheme, truncate(sig.ArticleSummary, 300))
	}

	var unique []core.Summary
	for _, sum := range newSummaries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Compared++

		start := time.Now()
		matched := d.compareOne(ctx, window, previous, sum)
		elapsed := time.Since(start)

		entry := core.DeduplicationLogEntry{
			Date:           date,
			NewArticleID:   sum.ItemID,
			Decision:       core.DedupUnique,
			ProcessingTime: elapsed,
			CreatedAt:      d.clock.Now(),
		}
		if matched != "" {
			entry.Decision = core.DedupDuplicate
			entry.MatchedSignatureID = matched
			result.Duplicates++
			if err := d.store.MarkTopicCovered(sum.ItemID, matched); err != nil {
				return result, err
			}
		} else {
			result.Unique++
			unique = append(unique, sum)
		}
		if err := d.store.LogDeduplication(entry); err != nil {
			logger.Error("Failed to write dedup log entry", err, "item_id", sum.ItemID)
		}
	}

	if err := d.storeSignatures(date, sequence, unique); err != nil {
		return result, err
	}

	logger.Info("Cross-run deduplication complete", "date", date,
		"compared", result.Compared, "duplicates", result.Duplicates, "unique", result.Unique)
	return result, nil
}

// compareOne returns the matched signature id, or "" for unique. Oracle
// failures and unparseable answers fall back to unique.
func (d *Deduplicator) compareOne(ctx context.Context, window []core.TopicSignature, previous []string, sum core.Summary) string {
	title := d.titleOf(sum)
	response, err := d.oracle.CompareTopics(ctx, previous, title, sum.Summary)
	if err != nil {
		logger.Warn("Topic comparison failed, treating as unique",
			"item_id", sum.ItemID, "error", err.Error())
		return ""
	}

	yes, index := ParseComparison(response, len(window))
	if !yes {
		return ""
	}
	// An unidentifiable match defaults to the first presented signature.
	if index < 0 {
		index = 0
	}
	return window[index].SignatureID
}

func (d *Deduplicator) titleOf(sum core.Summary) string {
	item, err := d.store.ItemByID(sum.ItemID)
	if err != nil || item == nil {
		return sum.Topic
	}
	return item.Title
}

// storeSignatures persists one signature per summary under the given run
// sequence.
func (d *Deduplicator) storeSignatures(date string, sequence int, summaries []core.Summary) error {
	if len(summaries) == 0 {
		return nil
	}
	now := d.clock.Now()
	sigs := make([]core.TopicSignature, len(summaries))
	for i, sum := range summaries {
		sigs[i] = core.TopicSignature{
			SignatureID:     uuid.NewString(),
			Date:            date,
			ArticleSummary:  truncate(sum.Summary, 1000),
			TopicTheme:      d.titleOf(sum),
			SourceArticleID: sum.ItemID,
			RunSequence:     sequence,
			CreatedAt:       now,
		}
	}
	return d.store.InsertSignatures(sigs)
}

var (
	yesRegex   = regexp.MustCompile(`(?i)^\s*YES`)
	indexRegex = regexp.MustCompile(`(?i)\[(\d+)\]|\bYES\D{0,10}(\d+)`)
)

// ParseComparison reads a YES/NO oracle answer. The returned index is the
// 0-based position of the matched signature, or -1 when a YES carries no
// parseable reference.
func ParseComparison(response string, windowSize int) (bool, int) {
	if !yesRegex.MatchString(response) {
		return false, -1
	}
	m := indexRegex.FindStringSubmatch(response)
	if m == nil {
		return true, -1
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || n > windowSize {
		return true, -1
	}
	return true, n - 1
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}
