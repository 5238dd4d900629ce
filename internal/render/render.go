// Package render serializes the day's digests to JSON and Markdown files.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/logger"
)

// Store is the renderer's slice of the store.
type Store interface {
	DigestStatesOn(date string) ([]core.DigestState, error)
}

// Renderer exports digest files.
type Renderer struct {
	store Store
	clock clock.Clock
	loc   *time.Location
}

// New creates a renderer.
func New(store Store, clk clock.Clock, loc *time.Location) *Renderer {
	return &Renderer{store: store, clock: clk, loc: loc}
}

// Export is the serialized shape of one day's digests.
type Export struct {
	Date        string          `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
	GeneratedAt time.Time       `json:"generated_at"`
	Digests     []TopicExport   `json:"digests"`
	Trending    []TrendingTopic `json:"trending_topics,omitempty"`
}

// TopicExport is one topic's digest in the export file.
type TopicExport struct {
	Topic        string             `json:"topic"`
	Content      core.DigestContent `json:"digest_content"`
	ArticleCount int                `json:"article_count"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TrendingTopic ranks topics by article volume for the day.
type TrendingTopic struct {
	Topic        string `json:"topic"`
	ArticleCount int    `json:"article_count"`
}

// WriteJSON exports the digests for a date to path. created_at is carried
// over from a previous export of the same file; generated_at always moves.
func (r *Renderer) WriteJSON(date, path string) (*Export, error) {
	export, err := r.build(date)
	if err != nil {
		return nil, err
	}

	if prior, err := readPriorExport(path); err == nil && prior != nil && !prior.CreatedAt.IsZero() {
		export.CreatedAt = prior.CreatedAt
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export %s: %w", path, err)
	}

	logger.Info("Digest export written", "path", path, "topics", len(export.Digests))
	return export, nil
}

// WriteMarkdown exports the digests for a date as a Markdown report.
func (r *Renderer) WriteMarkdown(date, path string) error {
	export, err := r.build(date)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(renderMarkdown(export)), 0o644); err != nil {
		return fmt.Errorf("failed to write export %s: %w", path, err)
	}
	logger.Info("Digest export written", "path", path, "topics", len(export.Digests))
	return nil
}

func (r *Renderer) build(date string) (*Export, error) {
	if date == "" {
		date = clock.DateIn(r.clock, r.loc)
	}
	states, err := r.store.DigestStatesOn(date)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	export := &Export{Date: date, CreatedAt: now, GeneratedAt: now}
	for _, st := range states {
		export.Digests = append(export.Digests, TopicExport{
			Topic:        st.Topic,
			Content:      st.Content,
			ArticleCount: st.ArticleCount,
			UpdatedAt:    st.UpdatedAt,
		})
		export.Trending = append(export.Trending, TrendingTopic{
			Topic:        st.Topic,
			ArticleCount: st.ArticleCount,
		})
	}
	sort.Slice(export.Trending, func(i, j int) bool {
		if export.Trending[i].ArticleCount != export.Trending[j].ArticleCount {
			return export.Trending[i].ArticleCount > export.Trending[j].ArticleCount
		}
		return export.Trending[i].Topic < export.Trending[j].Topic
	})
	return export, nil
}

// readPriorExport loads an earlier export of the same path, if any.
func readPriorExport(path string) (*Export, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var prior Export
	if err := json.Unmarshal(data, &prior); err != nil {
		return nil, err
	}
	return &prior, nil
}

func renderMarkdown(export *Export) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Daily Digest — %s\n\n", export.Date)
	fmt.Fprintf(&b, "_Generated at %s_\n\n", export.GeneratedAt.Format(time.RFC3339))

	if len(export.Digests) == 0 {
		b.WriteString("No digests for this date.\n")
		return b.String()
	}

	for _, d := range export.Digests {
		fmt.Fprintf(&b, "## %s\n\n", d.Topic)
		fmt.Fprintf(&b, "**%s**\n\n", d.Content.Headline)
		if d.Content.WhyItMatters != "" {
			fmt.Fprintf(&b, "%s\n\n", d.Content.WhyItMatters)
		}
		fmt.Fprintf(&b, "Articles: %d\n\n", d.ArticleCount)
		if len(d.Content.Sources) > 0 {
			b.WriteString("Sources:\n")
			for _, src := range d.Content.Sources {
				fmt.Fprintf(&b, "- %s\n", src)
			}
			b.WriteString("\n")
		}
	}

	if len(export.Trending) > 0 {
		b.WriteString("## Trending Topics\n\n")
		for _, t := range export.Trending {
			fmt.Fprintf(&b, "- %s (%d articles)\n", t.Topic, t.ArticleCount)
		}
	}
	return b.String()
}
