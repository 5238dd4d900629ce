// Package cluster groups same-story articles of the day by asking the
// oracle to label their titles, then marks one member per group as primary.
package cluster

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/logger"
)

// Oracle is the clusterer's slice of the chat oracle.
type Oracle interface {
	ClusterTitles(ctx context.Context, titles []string) (string, error)
}

// Store is the clusterer's slice of the store.
type Store interface {
	MatchedItemsWithExtractBetween(start, end time.Time) ([]core.Item, error)
	GetExtractedArticle(itemID int64) (*core.ExtractedArticle, error)
	SaveClusterRows(rows []core.ArticleCluster) error
}

// Clusterer runs one title-clustering pass over today's articles.
type Clusterer struct {
	store  Store
	oracle Oracle
	clock  clock.Clock
	loc    *time.Location
}

// New creates a clusterer.
func New(store Store, oracle Oracle, clk clock.Clock, loc *time.Location) *Clusterer {
	return &Clusterer{store: store, oracle: oracle, clock: clk, loc: loc}
}

// Result summarizes one clustering pass.
type Result struct {
	Articles int
	Clusters int
	Members  int
}

// Run clusters today's matched-and-extracted articles. Fewer than two
// articles is a no-op.
func (c *Clusterer) Run(ctx context.Context) (*Result, error) {
	start := clock.StartOfDay(c.clock, c.loc)
	end := start.AddDate(0, 0, 1)

	items, err := c.store.MatchedItemsWithExtractBetween(start, end)
	if err != nil {
		return nil, err
	}
	result := &Result{Articles: len(items)}
	if len(items) < 2 {
		logger.Debug("Too few articles to cluster", "count", len(items))
		return result, nil
	}

	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}

	response, err := c.oracle.ClusterTitles(ctx, titles)
	if err != nil {
		return nil, fmt.Errorf("title clustering failed: %w", err)
	}

	groups := ParseGroups(response, len(items))
	now := c.clock.Now()
	for label, indexes := range groups {
		if len(indexes) < 2 {
			continue
		}
		rows, err := c.buildCluster(label, indexes, items, now)
		if err != nil {
			logger.Warn("Skipping cluster", "label", label, "error", err.Error())
			continue
		}
		if err := c.store.SaveClusterRows(rows); err != nil {
			return result, err
		}
		result.Clusters++
		result.Members += len(rows)
	}

	logger.Info("Clustering complete", "articles", result.Articles,
		"clusters", result.Clusters, "members", result.Members)
	return result, nil
}

// buildCluster assembles the rows of one group; the member with the longest
// extracted text becomes primary.
func (c *Clusterer) buildCluster(label string, indexes []int, items []core.Item, now time.Time) ([]core.ArticleCluster, error) {
	clusterID := ClusterID(label, len(indexes))

	primary := -1
	longest := -1
	for _, idx := range indexes {
		article, err := c.store.GetExtractedArticle(items[idx].ID)
		if err != nil {
			return nil, err
		}
		length := 0
		if article != nil {
			length = len(article.ExtractedText)
		}
		if length > longest {
			longest = length
			primary = idx
		}
	}
	if primary < 0 {
		return nil, fmt.Errorf("no extracted member in group %q", label)
	}

	rows := make([]core.ArticleCluster, 0, len(indexes))
	for _, idx := range indexes {
		rows = append(rows, core.ArticleCluster{
			ClusterID:        clusterID,
			ArticleID:        items[idx].ID,
			ClusteringMethod: core.ClusteringGPTTitle,
			IsPrimary:        idx == primary,
			SimilarityScore:  1.0,
			CreatedAt:        now,
		})
	}
	return rows, nil
}

// ClusterID derives a short stable id from the group label and size.
func ClusterID(label string, size int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d", label, size)))
	return hex.EncodeToString(sum[:])[:12]
}

// groupLineRegex accepts "3, Label" plus the variants models produce:
// "3. Label", "3) Label", "- 3: Label", "Artikel 3, Label".
var groupLineRegex = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:artikel|article)?\s*(\d+)\s*[,.:)\-]\s*(.+?)\s*$`)

// ParseGroups reads the oracle's line-per-title response into label ->
// 0-based title indexes. Lines that don't look like assignments and
// out-of-range indexes are ignored.
func ParseGroups(response string, titleCount int) map[string][]int {
	groups := make(map[string][]int)
	assigned := make(map[int]bool)

	for _, line := range strings.Split(response, "\n") {
		m := groupLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > titleCount {
			continue
		}
		idx := n - 1
		if assigned[idx] {
			continue
		}
		assigned[idx] = true
		label := strings.TrimSpace(m[2])
		groups[label] = append(groups[label], idx)
	}
	return groups
}
