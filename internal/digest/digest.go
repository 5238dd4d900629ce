// Package digest builds and evolves the per-topic daily digest. The first
// run of a day generates a full digest; later runs fold only the newly
// processed articles in via a partial-plus-merge round trip.
package digest

import (
	"context"
	"fmt"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/llm"
	"riskradar/internal/logger"
)

// Oracle is the digest builder's slice of the chat oracle.
type Oracle interface {
	GenerateFullDigest(ctx context.Context, topic string, inputs []llm.DigestInput) (llm.DigestDraft, error)
	GeneratePartialDigest(ctx context.Context, topic string, inputs []llm.DigestInput) (llm.PartialDigest, error)
	MergeDigest(ctx context.Context, topic string, existing llm.DigestDraft, partial llm.PartialDigest) (llm.DigestDraft, error)
}

// Store is the digest builder's slice of the store.
type Store interface {
	GetDigestState(date, topic string) (*core.DigestState, error)
	UpsertDigestState(st core.DigestState) error
	DigestCandidates(topic string, start, end time.Time) ([]core.Summary, error)
	TopicsWithSummariesBetween(start, end time.Time) ([]string, error)
	ItemByID(id int64) (*core.Item, error)
	LogDigestGeneration(entry core.DigestGenerationLog) error
}

// Builder runs the digest step.
type Builder struct {
	store  Store
	oracle Oracle
	clock  clock.Clock
	loc    *time.Location
}

// New creates a digest builder.
func New(store Store, oracle Oracle, clk clock.Clock, loc *time.Location) *Builder {
	return &Builder{store: store, oracle: oracle, clock: clk, loc: loc}
}

// TopicDigest is the outcome for one topic.
type TopicDigest struct {
	Topic          string
	State          core.DigestState
	WasUpdated     bool
	NewArticles    int
	GenerationType core.GenerationType
}

// Result summarizes one digest run.
type Result struct {
	Date    string
	Digests []TopicDigest
}

// Run evolves the digests for the given date. An empty topics slice
// auto-discovers every topic with summaries that day. An empty date means
// today in the configured timezone.
func (b *Builder) Run(ctx context.Context, date string, topics []string) (*Result, error) {
	if date == "" {
		date = clock.DateIn(b.clock, b.loc)
	}
	dayStart, dayEnd, err := clock.DayBounds(date, b.loc)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		discovered, err := b.store.TopicsWithSummariesBetween(dayStart, dayEnd)
		if err != nil {
			return nil, err
		}
		topics = discovered
	}

	start := time.Now()
	result := &Result{Date: date}
	apiCalls := 0
	totalArticles := 0
	newArticles := 0

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		td, calls, err := b.buildTopic(ctx, date, dayStart, dayEnd, topic)
		if err != nil {
			return result, fmt.Errorf("digest for topic %s failed: %w", topic, err)
		}
		apiCalls += calls
		totalArticles += td.State.ArticleCount
		newArticles += td.NewArticles
		result.Digests = append(result.Digests, *td)
	}

	if len(result.Digests) > 0 {
		entry := core.DigestGenerationLog{
			DigestDate:      date,
			GenerationType:  overallType(result.Digests),
			TopicsProcessed: len(result.Digests),
			TotalArticles:   totalArticles,
			NewArticles:     newArticles,
			APICallsMade:    apiCalls,
			ExecutionTime:   time.Since(start).Seconds(),
			CreatedAt:       b.clock.Now(),
		}
		if err := b.store.LogDigestGeneration(entry); err != nil {
			logger.Error("Failed to write digest generation log", err, "date", date)
		}
	}

	logger.Info("Digest run complete", "date", date,
		"topics", len(result.Digests), "new_articles", newArticles, "api_calls", apiCalls)
	return result, nil
}

// buildTopic evolves one topic's digest and returns the oracle call count.
func (b *Builder) buildTopic(ctx context.Context, date string, dayStart, dayEnd time.Time, topic string) (*TopicDigest, int, error) {
	prior, err := b.store.GetDigestState(date, topic)
	if err != nil {
		return nil, 0, err
	}

	candidates, err := b.store.DigestCandidates(topic, dayStart, dayEnd)
	if err != nil {
		return nil, 0, err
	}

	processed := make(map[int64]bool)
	if prior != nil {
		for _, id := range prior.ProcessedArticleIDs {
			processed[id] = true
		}
	}
	var fresh []core.Summary
	for _, sum := range candidates {
		if !processed[sum.ItemID] {
			fresh = append(fresh, sum)
		}
	}

	now := b.clock.Now()

	if len(fresh) == 0 {
		if prior != nil {
			return &TopicDigest{Topic: topic, State: *prior, GenerationType: core.GenerationCached}, 0, nil
		}
		// No state, no new material: a no-activity stub, not persisted.
		stub := core.DigestState{
			DigestDate: date,
			Topic:      topic,
			Content: core.DigestContent{
				Headline:     fmt.Sprintf("No new activity for %s", topic),
				WhyItMatters: "No relevant articles were processed for this topic today.",
				GeneratedAt:  now,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return &TopicDigest{Topic: topic, State: stub, GenerationType: core.GenerationCached}, 0, nil
	}

	inputs := b.digestInputs(fresh)

	var state core.DigestState
	var genType core.GenerationType
	calls := 0

	if prior == nil {
		draft, err := b.oracle.GenerateFullDigest(ctx, topic, inputs)
		calls++
		if err != nil {
			return nil, calls, err
		}
		state = core.DigestState{
			DigestDate: date,
			Topic:      topic,
			Content: core.DigestContent{
				Headline:     draft.Headline,
				WhyItMatters: draft.WhyItMatters,
				Sources:      draft.Sources,
				ArticleCount: len(fresh),
				GeneratedAt:  now,
			},
			ArticleCount: len(fresh),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		genType = core.GenerationFull
	} else {
		partial, err := b.oracle.GeneratePartialDigest(ctx, topic, inputs)
		calls++
		if err != nil {
			return nil, calls, err
		}

		existing := llm.DigestDraft{
			Headline:     prior.Content.Headline,
			WhyItMatters: prior.Content.WhyItMatters,
			Sources:      prior.Content.Sources,
			ArticleCount: prior.ArticleCount,
			GeneratedAt:  prior.Content.GeneratedAt,
		}
		merged, err := b.oracle.MergeDigest(ctx, topic, existing, partial)
		calls++
		if err != nil {
			// Keep the prior wording, only move the counters forward.
			logger.Warn("Digest merge failed, reusing existing content",
				"topic", topic, "error", err.Error())
			merged = existing
		}

		state = *prior
		state.Content.Headline = merged.Headline
		state.Content.WhyItMatters = merged.WhyItMatters
		if len(merged.Sources) > 0 {
			state.Content.Sources = merged.Sources
		}
		state.ArticleCount = prior.ArticleCount + len(fresh)
		state.Content.ArticleCount = state.ArticleCount
		state.Content.LastUpdated = &now
		state.UpdatedAt = now
		genType = core.GenerationIncremental
	}

	for _, sum := range fresh {
		state.ProcessedArticleIDs = append(state.ProcessedArticleIDs, sum.ItemID)
	}
	if err := b.store.UpsertDigestState(state); err != nil {
		return nil, calls, err
	}

	return &TopicDigest{
		Topic:          topic,
		State:          state,
		WasUpdated:     true,
		NewArticles:    len(fresh),
		GenerationType: genType,
	}, calls, nil
}

// digestInputs resolves source URLs for the prompt.
func (b *Builder) digestInputs(summaries []core.Summary) []llm.DigestInput {
	inputs := make([]llm.DigestInput, len(summaries))
	for i, sum := range summaries {
		input := llm.DigestInput{Summary: sum.Summary}
		if item, err := b.store.ItemByID(sum.ItemID); err == nil && item != nil {
			input.Title = item.Title
			input.URL = item.NormalizedURL
		}
		inputs[i] = input
	}
	return inputs
}

func overallType(digests []TopicDigest) core.GenerationType {
	overall := core.GenerationCached
	for _, d := range digests {
		switch d.GenerationType {
		case core.GenerationFull:
			if overall == core.GenerationCached {
				overall = core.GenerationFull
			}
		case core.GenerationIncremental:
			overall = core.GenerationIncremental
		}
	}
	return overall
}
