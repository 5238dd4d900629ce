package store

import (
	"path/filepath"
	"testing"
	"time"

	"riskradar/internal/clock"
	"riskradar/internal/core"
	"riskradar/internal/urlutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testItem(t *testing.T, rawURL, title string) core.Item {
	t.Helper()
	normalized, hash, err := urlutil.NormalizeAndHash(rawURL)
	if err != nil {
		t.Fatalf("NormalizeAndHash failed: %v", err)
	}
	return core.Item{
		Source:        "test",
		RawURL:        rawURL,
		NormalizedURL: normalized,
		URLHash:       hash,
		Title:         title,
		FirstSeenAt:   time.Now().UTC(),
		PipelineStage: core.StageCollected,
	}
}

func insertOne(t *testing.T, s *Store, rawURL, title string) core.Item {
	t.Helper()
	if _, err := s.InsertItems([]core.Item{testItem(t, rawURL, title)}); err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}
	items, err := s.UnclassifiedItems(1000)
	if err != nil {
		t.Fatalf("UnclassifiedItems failed: %v", err)
	}
	for _, item := range items {
		if item.RawURL == rawURL {
			return item
		}
	}
	t.Fatalf("inserted item %s not found", rawURL)
	return core.Item{}
}

func TestInsertItems_ConflictIgnored(t *testing.T) {
	s := newTestStore(t)

	// Same article through a tracking link and a clean link.
	a := testItem(t, "https://Example.com/Article?utm_source=x&id=42#frag", "A")
	b := testItem(t, "https://example.com/Article?id=42", "A")
	if a.URLHash != b.URLHash {
		t.Fatalf("Expected identical hashes, got %s vs %s", a.URLHash, b.URLHash)
	}

	n, err := s.InsertItems([]core.Item{a, b})
	if err != nil {
		t.Fatalf("InsertItems failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 inserted row, got %d", n)
	}
}

func TestUpdateItemTriage_AndMatchedQuery(t *testing.T) {
	s := newTestStore(t)
	item := insertOne(t, s, "https://example.com/ubs-ceo", "UBS names new CEO")

	if err := s.UpdateItemTriage(item.ID, "creditreform_insights", 0.92, true, "run-1"); err != nil {
		t.Fatalf("UpdateItemTriage failed: %v", err)
	}

	matched, err := s.MatchedItemsForRun("run-1", 0.70)
	if err != nil {
		t.Fatalf("MatchedItemsForRun failed: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("Expected 1 matched item, got %d", len(matched))
	}
	if matched[0].PipelineStage != core.StageMatched {
		t.Errorf("Expected stage matched, got %s", matched[0].PipelineStage)
	}
	if *matched[0].TriageConfidence != 0.92 {
		t.Errorf("Expected confidence 0.92, got %f", *matched[0].TriageConfidence)
	}
}

func TestAssignSelection_ContiguousRanks(t *testing.T) {
	s := newTestStore(t)

	var ids []int64
	urls := []string{
		"https://example.com/a", "https://example.com/b", "https://example.com/c",
	}
	confidences := []float64{0.95, 0.85, 0.75}
	for i, u := range urls {
		item := insertOne(t, s, u, u)
		if err := s.UpdateItemTriage(item.ID, "t", confidences[i], true, "run-1"); err != nil {
			t.Fatalf("UpdateItemTriage failed: %v", err)
		}
		ids = append(ids, item.ID)
	}

	// Select only the top two.
	if err := s.AssignSelection("run-1", ids[:2]); err != nil {
		t.Fatalf("AssignSelection failed: %v", err)
	}

	matched, err := s.MatchedItemsForRun("run-1", 0)
	if err != nil {
		t.Fatalf("MatchedItemsForRun failed: %v", err)
	}

	seen := make(map[int]bool)
	for _, item := range matched {
		if item.SelectedForProcessing {
			if item.SelectionRank == nil {
				t.Fatalf("Selected item %d has no rank", item.ID)
			}
			if seen[*item.SelectionRank] {
				t.Errorf("Duplicate selection rank %d", *item.SelectionRank)
			}
			seen[*item.SelectionRank] = true
			if item.PipelineStage != core.StageSelected {
				t.Errorf("Expected stage selected, got %s", item.PipelineStage)
			}
		} else if item.PipelineStage != core.StageMatchedNotChosen {
			t.Errorf("Unselected match should be matched_not_selected, got %s", item.PipelineStage)
		}
	}
	for rank := 1; rank <= 2; rank++ {
		if !seen[rank] {
			t.Errorf("Rank %d missing; ranks must be contiguous 1..k", rank)
		}
	}

	// Re-running selection must not violate the unique rank index.
	if err := s.AssignSelection("run-1", ids[:2]); err != nil {
		t.Fatalf("AssignSelection re-run failed: %v", err)
	}
}

func TestExtraction_FailureThenSuccess(t *testing.T) {
	s := newTestStore(t)
	item := insertOne(t, s, "https://example.com/x", "X")
	if err := s.UpdateItemTriage(item.ID, "t", 0.9, true, "run-1"); err != nil {
		t.Fatalf("UpdateItemTriage failed: %v", err)
	}
	if err := s.AssignSelection("run-1", []int64{item.ID}); err != nil {
		t.Fatalf("AssignSelection failed: %v", err)
	}

	pending, err := s.ItemsNeedingExtraction()
	if err != nil {
		t.Fatalf("ItemsNeedingExtraction failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 item needing extraction, got %d", len(pending))
	}

	// A failure keeps the item retriable.
	if err := s.RecordExtractionFailure(item.ID, "timeout", time.Now()); err != nil {
		t.Fatalf("RecordExtractionFailure failed: %v", err)
	}
	pending, err = s.ItemsNeedingExtraction()
	if err != nil {
		t.Fatalf("ItemsNeedingExtraction failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Failed item should remain retriable, got %d pending", len(pending))
	}

	a, err := s.GetExtractedArticle(item.ID)
	if err != nil {
		t.Fatalf("GetExtractedArticle failed: %v", err)
	}
	if a.FailureCount != 1 || a.LastFailureReason != "timeout" {
		t.Errorf("Unexpected failure record: count=%d reason=%q", a.FailureCount, a.LastFailureReason)
	}

	// Success removes the item from the queue and advances the stage.
	if err := s.SaveExtractedArticle(core.ExtractedArticle{
		ItemID:           item.ID,
		ExtractedText:    "long enough text",
		ExtractionMethod: core.ExtractionHeuristic,
		ExtractedAt:      time.Now(),
	}); err != nil {
		t.Fatalf("SaveExtractedArticle failed: %v", err)
	}
	pending, err = s.ItemsNeedingExtraction()
	if err != nil {
		t.Fatalf("ItemsNeedingExtraction failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("Extracted item should leave the queue, got %d pending", len(pending))
	}
	got, _ := s.ItemByID(item.ID)
	if got.PipelineStage != core.StageScraped {
		t.Errorf("Expected stage scraped, got %s", got.PipelineStage)
	}
}

func TestSummarizationCandidates_ExcludesNonPrimary(t *testing.T) {
	s := newTestStore(t)

	longText := make([]byte, 700)
	for i := range longText {
		longText[i] = 'x'
	}

	primary := insertOne(t, s, "https://example.com/primary", "Meyer Burger close to insolvency")
	secondary := insertOne(t, s, "https://example.com/secondary", "Meyer Burger nears collapse")
	for _, item := range []core.Item{primary, secondary} {
		if err := s.UpdateItemTriage(item.ID, "t", 0.9, true, "run-1"); err != nil {
			t.Fatalf("UpdateItemTriage failed: %v", err)
		}
		if err := s.SaveExtractedArticle(core.ExtractedArticle{
			ItemID:           item.ID,
			ExtractedText:    string(longText),
			ExtractionMethod: core.ExtractionHeuristic,
			ExtractedAt:      time.Now(),
		}); err != nil {
			t.Fatalf("SaveExtractedArticle failed: %v", err)
		}
	}

	now := time.Now().UTC()
	if err := s.SaveClusterRows([]core.ArticleCluster{
		{ClusterID: "c1", ArticleID: primary.ID, IsPrimary: true, SimilarityScore: 1.0, ClusteringMethod: core.ClusteringGPTTitle, CreatedAt: now},
		{ClusterID: "c1", ArticleID: secondary.ID, IsPrimary: false, SimilarityScore: 1.0, ClusteringMethod: core.ClusteringGPTTitle, CreatedAt: now},
	}); err != nil {
		t.Fatalf("SaveClusterRows failed: %v", err)
	}

	candidates, err := s.SummarizationCandidates(600)
	if err != nil {
		t.Fatalf("SummarizationCandidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected only the primary candidate, got %d", len(candidates))
	}
	if candidates[0].Item.ID != primary.ID {
		t.Errorf("Expected primary item %d, got %d", primary.ID, candidates[0].Item.ID)
	}
}

func TestClusterRows_SinglePrimary(t *testing.T) {
	s := newTestStore(t)
	a := insertOne(t, s, "https://example.com/1", "One")
	b := insertOne(t, s, "https://example.com/2", "Two")

	now := time.Now().UTC()
	if err := s.SaveClusterRows([]core.ArticleCluster{
		{ClusterID: "g1", ArticleID: a.ID, IsPrimary: true, SimilarityScore: 1.0, ClusteringMethod: core.ClusteringGPTTitle, CreatedAt: now},
		{ClusterID: "g1", ArticleID: b.ID, IsPrimary: false, SimilarityScore: 1.0, ClusteringMethod: core.ClusteringGPTTitle, CreatedAt: now},
	}); err != nil {
		t.Fatalf("SaveClusterRows failed: %v", err)
	}

	rows, err := s.ClusterRows("g1")
	if err != nil {
		t.Fatalf("ClusterRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	primaries := 0
	for _, r := range rows {
		if r.IsPrimary {
			primaries++
		}
		if r.ClusteringMethod != core.ClusteringGPTTitle {
			t.Errorf("Unexpected clustering method %s", r.ClusteringMethod)
		}
	}
	if primaries != 1 {
		t.Errorf("Expected exactly one primary, got %d", primaries)
	}
}

func TestProcessedLink_Memoization(t *testing.T) {
	s := newTestStore(t)

	link, err := s.GetProcessedLink("deadbeef", "t")
	if err != nil {
		t.Fatalf("GetProcessedLink failed: %v", err)
	}
	if link != nil {
		t.Fatal("Absent link must return nil, not a rejection")
	}

	if err := s.UpsertProcessedLink(core.ProcessedLink{
		URLHash: "deadbeef", URL: "https://example.com", Topic: "t",
		ProcessedAt: time.Now(), Result: core.TriageMatched, Confidence: 0.9,
	}); err != nil {
		t.Fatalf("UpsertProcessedLink failed: %v", err)
	}

	link, err = s.GetProcessedLink("deadbeef", "t")
	if err != nil {
		t.Fatalf("GetProcessedLink failed: %v", err)
	}
	if link == nil || link.Result != core.TriageMatched {
		t.Errorf("Expected memoized matched result, got %+v", link)
	}

	// Different topic is a separate cache entry.
	other, err := s.GetProcessedLink("deadbeef", "other")
	if err != nil {
		t.Fatalf("GetProcessedLink failed: %v", err)
	}
	if other != nil {
		t.Error("Different topic must miss the cache")
	}
}

func TestDigestState_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	st := core.DigestState{
		DigestDate:          "2026-08-24",
		Topic:               "creditreform_insights",
		ProcessedArticleIDs: []int64{1, 2},
		Content: core.DigestContent{
			Headline:     "UBS leadership change dominates",
			WhyItMatters: "Signals strategy shift",
			Sources:      []string{"https://example.com/a", "https://example.com/b"},
			ArticleCount: 2,
			GeneratedAt:  now,
		},
		ArticleCount: 2,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.UpsertDigestState(st); err != nil {
		t.Fatalf("UpsertDigestState failed: %v", err)
	}

	got, err := s.GetDigestState("2026-08-24", "creditreform_insights")
	if err != nil {
		t.Fatalf("GetDigestState failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected digest state")
	}
	if got.Content.Headline != st.Content.Headline {
		t.Errorf("Headline mismatch: %q", got.Content.Headline)
	}
	if len(got.ProcessedArticleIDs) != 2 {
		t.Errorf("Expected 2 processed ids, got %d", len(got.ProcessedArticleIDs))
	}

	// Update must keep created_at and extend ids.
	st.ProcessedArticleIDs = append(st.ProcessedArticleIDs, 3)
	st.ArticleCount = 3
	st.UpdatedAt = now.Add(time.Hour)
	if err := s.UpsertDigestState(st); err != nil {
		t.Fatalf("UpsertDigestState update failed: %v", err)
	}
	got, _ = s.GetDigestState("2026-08-24", "creditreform_insights")
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at must survive updates: %v vs %v", got.CreatedAt, now)
	}
	if got.ArticleCount != 3 {
		t.Errorf("Expected article count 3, got %d", got.ArticleCount)
	}
}

func TestUncoveredSummaries_LocalDayAndSignedExclusion(t *testing.T) {
	s := newTestStore(t)
	item := insertOne(t, s, "https://example.com/late", "Late evening story")

	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatal(err)
	}

	// 23:30 UTC on Aug 24 is already 01:30 on Aug 25 in Zurich.
	createdAt := time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC)
	if err := s.SaveSummary(core.Summary{
		ItemID: item.ID, Topic: "credit_risk", Model: "m",
		Summary: "Spät publizierte Meldung.", CreatedAt: createdAt,
	}); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	start, end, err := clock.DayBounds("2026-08-25", loc)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.UncoveredSummariesBetween(start, end)
	if err != nil {
		t.Fatalf("UncoveredSummariesBetween failed: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != item.ID {
		t.Fatalf("Expected the summary on its local day, got %+v", got)
	}

	prevStart, prevEnd, err := clock.DayBounds("2026-08-24", loc)
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.UncoveredSummariesBetween(prevStart, prevEnd)
	if err != nil {
		t.Fatalf("UncoveredSummariesBetween failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Summary must not appear on the previous local day, got %+v", got)
	}

	topics, err := s.TopicsWithSummariesBetween(start, end)
	if err != nil {
		t.Fatalf("TopicsWithSummariesBetween failed: %v", err)
	}
	if len(topics) != 1 || topics[0] != "credit_risk" {
		t.Errorf("Expected credit_risk on its local day, got %v", topics)
	}

	// A signature sourced from the item means a dedup pass already handled
	// it; the summary must drop out of the uncovered set.
	if err := s.InsertSignatures([]core.TopicSignature{{
		SignatureID: "sig-late", Date: "2026-08-25", ArticleSummary: "Spät publizierte Meldung.",
		TopicTheme: "Late story", SourceArticleID: item.ID, RunSequence: 1, CreatedAt: createdAt,
	}}); err != nil {
		t.Fatalf("InsertSignatures failed: %v", err)
	}
	got, err = s.UncoveredSummariesBetween(start, end)
	if err != nil {
		t.Fatalf("UncoveredSummariesBetween failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Signed summary must be excluded, got %+v", got)
	}
}

func TestDigestCandidates_LocalDayBounds(t *testing.T) {
	s := newTestStore(t)
	item := insertOne(t, s, "https://example.com/morning", "Morning story")

	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSummary(core.Summary{
		ItemID: item.ID, Topic: "credit_risk", Model: "m",
		Summary: "Meldung.", CreatedAt: time.Date(2026, 8, 24, 23, 30, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("SaveSummary failed: %v", err)
	}

	start, end, err := clock.DayBounds("2026-08-25", loc)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.DigestCandidates("credit_risk", start, end)
	if err != nil {
		t.Fatalf("DigestCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != item.ID {
		t.Fatalf("Expected the candidate on its local day, got %+v", got)
	}

	prevStart, prevEnd, err := clock.DayBounds("2026-08-24", loc)
	if err != nil {
		t.Fatal(err)
	}
	got, err = s.DigestCandidates("credit_risk", prevStart, prevEnd)
	if err != nil {
		t.Fatalf("DigestCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Candidate must not appear on the previous local day, got %+v", got)
	}
}

func TestSignatures_RetentionPurge(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	sigs := []core.TopicSignature{
		{SignatureID: "old", Date: "2026-08-10", ArticleSummary: "old", TopicTheme: "x", SourceArticleID: 1, RunSequence: 1, CreatedAt: now},
		{SignatureID: "new", Date: "2026-08-24", ArticleSummary: "new", TopicTheme: "y", SourceArticleID: 2, RunSequence: 1, CreatedAt: now},
	}
	if err := s.InsertSignatures(sigs); err != nil {
		t.Fatalf("InsertSignatures failed: %v", err)
	}

	today, _ := time.Parse("2006-01-02", "2026-08-24")
	cutoff := SignatureRetentionCutoff(today, 7)
	purged, err := s.PurgeSignaturesBefore(cutoff)
	if err != nil {
		t.Fatalf("PurgeSignaturesBefore failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged signature, got %d", purged)
	}

	remaining, err := s.SignaturesForDate("2026-08-24")
	if err != nil {
		t.Fatalf("SignaturesForDate failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].SignatureID != "new" {
		t.Errorf("Expected only the recent signature to remain: %+v", remaining)
	}
}

func TestStepStates_PauseAndOrder(t *testing.T) {
	s := newTestStore(t)

	if err := s.InitRunSteps("run-1"); err != nil {
		t.Fatalf("InitRunSteps failed: %v", err)
	}
	now := time.Now().UTC()
	if err := s.MarkStepRunning("run-1", core.StepScraping, now); err != nil {
		t.Fatalf("MarkStepRunning failed: %v", err)
	}

	paused, err := s.PauseRunningSteps("run-1", "interrupted by signal", now)
	if err != nil {
		t.Fatalf("PauseRunningSteps failed: %v", err)
	}
	if paused != 1 {
		t.Errorf("Expected 1 paused step, got %d", paused)
	}

	states, err := s.StepStates("run-1")
	if err != nil {
		t.Fatalf("StepStates failed: %v", err)
	}
	if len(states) != len(core.StepOrder) {
		t.Fatalf("Expected %d step rows, got %d", len(core.StepOrder), len(states))
	}
	for i, st := range states {
		if st.StepName != core.StepOrder[i] {
			t.Errorf("Step order violated at %d: %s", i, st.StepName)
		}
	}
	if states[2].Status != core.StepPaused {
		t.Errorf("Expected scraping paused, got %s", states[2].Status)
	}
	if states[2].ErrorMessage != "interrupted by signal" {
		t.Errorf("Expected pause reason, got %q", states[2].ErrorMessage)
	}
}

func TestFunnelCounts_Monotonic(t *testing.T) {
	s := newTestStore(t)

	// Three collected, two matched, one selected and scraped.
	items := []core.Item{
		insertOne(t, s, "https://example.com/1", "UBS names new CEO"),
		insertOne(t, s, "https://example.com/2", "Swiss franc at new high"),
		insertOne(t, s, "https://example.com/3", "FC Zürich loses cup tie"),
	}
	_ = s.UpdateItemTriage(items[0].ID, "t", 0.92, true, "run-1")
	_ = s.UpdateItemTriage(items[1].ID, "t", 0.81, true, "run-1")
	_ = s.UpdateItemTriage(items[2].ID, "t", 0.2, false, "run-1")
	_ = s.AssignSelection("run-1", []int64{items[0].ID})
	_ = s.SaveExtractedArticle(core.ExtractedArticle{
		ItemID: items[0].ID, ExtractedText: "text", ExtractionMethod: core.ExtractionHeuristic, ExtractedAt: time.Now(),
	})

	counts, err := s.FunnelCounts("run-1")
	if err != nil {
		t.Fatalf("FunnelCounts failed: %v", err)
	}
	matched := counts[core.StageScraped] + counts[core.StageMatchedNotChosen] + counts[core.StageSelected]
	if matched != 2 {
		t.Errorf("Expected 2 surviving matches in funnel, got %d (%v)", matched, counts)
	}
	if counts[core.StageFilteredOut] != 1 {
		t.Errorf("Expected 1 filtered out, got %d", counts[core.StageFilteredOut])
	}
}
