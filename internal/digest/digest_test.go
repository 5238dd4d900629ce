package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/llm"
)

func zurich(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

type digestStore struct {
	states     map[string]core.DigestState // date|topic
	candidates map[string][]core.Summary   // topic
	topics     []string
	items      map[int64]core.Item
	logged     []core.DigestGenerationLog
}

func newDigestStore() *digestStore {
	return &digestStore{
		states:     make(map[string]core.DigestState),
		candidates: make(map[string][]core.Summary),
		items:      make(map[int64]core.Item),
	}
}

func (s *digestStore) GetDigestState(date, topic string) (*core.DigestState, error) {
	st, ok := s.states[date+"|"+topic]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *digestStore) UpsertDigestState(st core.DigestState) error {
	key := st.DigestDate + "|" + st.Topic
	if prior, ok := s.states[key]; ok {
		st.CreatedAt = prior.CreatedAt
	}
	s.states[key] = st
	return nil
}

func (s *digestStore) DigestCandidates(topic string, start, end time.Time) ([]core.Summary, error) {
	return s.candidates[topic], nil
}

func (s *digestStore) TopicsWithSummariesBetween(start, end time.Time) ([]string, error) {
	return s.topics, nil
}

func (s *digestStore) ItemByID(id int64) (*core.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *digestStore) LogDigestGeneration(entry core.DigestGenerationLog) error {
	s.logged = append(s.logged, entry)
	return nil
}

type digestOracle struct {
	fullCalls    int
	partialCalls int
	mergeCalls   int
	mergeErr     error
}

func (o *digestOracle) GenerateFullDigest(ctx context.Context, topic string, inputs []llm.DigestInput) (llm.DigestDraft, error) {
	o.fullCalls++
	return llm.DigestDraft{
		Headline:     "Konkurswelle im Baugewerbe",
		WhyItMatters: "Mehrere Zulieferer sind betroffen.",
		Sources:      []string{"https://example.ch/a"},
		ArticleCount: len(inputs),
	}, nil
}

func (o *digestOracle) GeneratePartialDigest(ctx context.Context, topic string, inputs []llm.DigestInput) (llm.PartialDigest, error) {
	o.partialCalls++
	return llm.PartialDigest{
		KeyInsights:  []string{"Weitere Firma betroffen"},
		NewSources:   []string{"https://example.ch/b"},
		ArticleCount: len(inputs),
	}, nil
}

func (o *digestOracle) MergeDigest(ctx context.Context, topic string, existing llm.DigestDraft, partial llm.PartialDigest) (llm.DigestDraft, error) {
	o.mergeCalls++
	if o.mergeErr != nil {
		return llm.DigestDraft{}, o.mergeErr
	}
	return llm.DigestDraft{
		Headline:     "Konkurswelle weitet sich aus",
		WhyItMatters: existing.WhyItMatters + " Ein weiterer Fall kam hinzu.",
		Sources:      append(existing.Sources, partial.NewSources...),
	}, nil
}

const day = "2026-08-24"

func TestRunFullDigestOnFirstRun(t *testing.T) {
	store := newDigestStore()
	store.topics = []string{"credit_risk"}
	store.candidates["credit_risk"] = []core.Summary{
		{ItemID: 1, Topic: "credit_risk", Summary: "Konkurs A."},
		{ItemID: 2, Topic: "credit_risk", Summary: "Konkurs B."},
	}
	store.items[1] = core.Item{ID: 1, Title: "A", NormalizedURL: "https://example.ch/a"}
	oracle := &digestOracle{}
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)}

	b := New(store, oracle, clk, zurich(t))
	result, err := b.Run(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Digests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(result.Digests))
	}
	td := result.Digests[0]
	if td.GenerationType != core.GenerationFull || td.NewArticles != 2 {
		t.Errorf("expected full generation of 2 articles, got %+v", td)
	}
	if oracle.fullCalls != 1 || oracle.partialCalls != 0 {
		t.Errorf("unexpected oracle usage: %+v", oracle)
	}

	saved := store.states[day+"|credit_risk"]
	if saved.ArticleCount != 2 || len(saved.ProcessedArticleIDs) != 2 {
		t.Errorf("unexpected persisted state %+v", saved)
	}
	if len(store.logged) != 1 || store.logged[0].GenerationType != core.GenerationFull {
		t.Errorf("expected full generation log, got %+v", store.logged)
	}
}

func TestRunIncrementalMerge(t *testing.T) {
	store := newDigestStore()
	store.topics = []string{"credit_risk"}
	created := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	store.states[day+"|credit_risk"] = core.DigestState{
		DigestDate:          day,
		Topic:               "credit_risk",
		ProcessedArticleIDs: []int64{1, 2},
		Content: core.DigestContent{
			Headline:     "Konkurswelle im Baugewerbe",
			WhyItMatters: "Mehrere Zulieferer sind betroffen.",
			Sources:      []string{"https://example.ch/a"},
			ArticleCount: 2,
			GeneratedAt:  created,
		},
		ArticleCount: 2,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	store.candidates["credit_risk"] = []core.Summary{
		{ItemID: 1, Topic: "credit_risk", Summary: "Schon verarbeitet."},
		{ItemID: 3, Topic: "credit_risk", Summary: "Neuer Fall."},
	}
	oracle := &digestOracle{}
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)}

	b := New(store, oracle, clk, zurich(t))
	result, err := b.Run(context.Background(), day, []string{"credit_risk"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	td := result.Digests[0]
	if td.GenerationType != core.GenerationIncremental || td.NewArticles != 1 {
		t.Errorf("expected incremental with 1 new article, got %+v", td)
	}
	if oracle.partialCalls != 1 || oracle.mergeCalls != 1 || oracle.fullCalls != 0 {
		t.Errorf("unexpected oracle usage: %+v", oracle)
	}

	saved := store.states[day+"|credit_risk"]
	if saved.ArticleCount != 3 {
		t.Errorf("article count must accumulate, got %d", saved.ArticleCount)
	}
	if len(saved.ProcessedArticleIDs) != 3 {
		t.Errorf("processed ids must accumulate, got %v", saved.ProcessedArticleIDs)
	}
	if !saved.CreatedAt.Equal(created) {
		t.Error("created_at must survive updates")
	}
	if saved.Content.LastUpdated == nil {
		t.Error("last_updated must be set on incremental update")
	}
	if saved.Content.Headline != "Konkurswelle weitet sich aus" {
		t.Errorf("merged headline not applied: %q", saved.Content.Headline)
	}
}

func TestRunMergeFailureKeepsExistingContent(t *testing.T) {
	store := newDigestStore()
	created := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	store.states[day+"|credit_risk"] = core.DigestState{
		DigestDate:          day,
		Topic:               "credit_risk",
		ProcessedArticleIDs: []int64{1},
		Content: core.DigestContent{
			Headline:     "Bestehende Schlagzeile",
			WhyItMatters: "Bestehender Kontext.",
			ArticleCount: 1,
			GeneratedAt:  created,
		},
		ArticleCount: 1,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	store.candidates["credit_risk"] = []core.Summary{{ItemID: 2, Topic: "credit_risk", Summary: "Neu."}}
	oracle := &digestOracle{mergeErr: errors.New("schema violation")}
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)}

	b := New(store, oracle, clk, zurich(t))
	result, err := b.Run(context.Background(), day, []string{"credit_risk"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	saved := store.states[day+"|credit_risk"]
	if saved.Content.Headline != "Bestehende Schlagzeile" {
		t.Errorf("merge failure must keep existing headline, got %q", saved.Content.Headline)
	}
	if saved.ArticleCount != 2 {
		t.Errorf("counters must still advance, got %d", saved.ArticleCount)
	}
	if result.Digests[0].GenerationType != core.GenerationIncremental {
		t.Errorf("unexpected generation type %s", result.Digests[0].GenerationType)
	}
}

func TestRunNoNewArticlesIsCached(t *testing.T) {
	store := newDigestStore()
	created := time.Date(2026, 8, 24, 7, 0, 0, 0, time.UTC)
	store.states[day+"|credit_risk"] = core.DigestState{
		DigestDate:          day,
		Topic:               "credit_risk",
		ProcessedArticleIDs: []int64{1},
		Content:             core.DigestContent{Headline: "Unverändert", ArticleCount: 1, GeneratedAt: created},
		ArticleCount:        1,
		CreatedAt:           created,
		UpdatedAt:           created,
	}
	store.candidates["credit_risk"] = []core.Summary{{ItemID: 1, Topic: "credit_risk", Summary: "Alt."}}
	oracle := &digestOracle{}
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)}

	b := New(store, oracle, clk, zurich(t))
	result, err := b.Run(context.Background(), day, []string{"credit_risk"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	td := result.Digests[0]
	if td.WasUpdated || td.GenerationType != core.GenerationCached || td.NewArticles != 0 {
		t.Errorf("expected cached digest, got %+v", td)
	}
	if oracle.fullCalls+oracle.partialCalls+oracle.mergeCalls != 0 {
		t.Error("cached digest must not call the oracle")
	}
	if store.states[day+"|credit_risk"].UpdatedAt != created {
		t.Error("cached digest must not rewrite state")
	}
}

func TestRunIdempotent(t *testing.T) {
	store := newDigestStore()
	store.topics = []string{"credit_risk"}
	store.candidates["credit_risk"] = []core.Summary{{ItemID: 1, Topic: "credit_risk", Summary: "Fall A."}}
	oracle := &digestOracle{}
	clk := &clock.Fake{Current: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)}

	b := New(store, oracle, clk, zurich(t))
	if _, err := b.Run(context.Background(), day, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := b.Run(context.Background(), day, nil)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Digests[0].NewArticles != 0 {
		t.Error("second run over the same articles must see nothing new")
	}
	if oracle.fullCalls != 1 {
		t.Errorf("expected a single full generation, got %d", oracle.fullCalls)
	}
}
