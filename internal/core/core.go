// Package core defines the domain types shared by every pipeline stage.
package core

import "time"

// Stage identifies where an Item sits in the per-article state machine.
// Transitions are strictly monotonic along the funnel; an Item never moves
// backwards except through an explicit re-run.
type Stage string

const (
	StageCollected        Stage = "collected"
	StageMatched          Stage = "matched"
	StageFilteredOut      Stage = "filtered_out"
	StageSelected         Stage = "selected"
	StageMatchedNotChosen Stage = "matched_not_selected"
	StageScraped          Stage = "scraped"
	StageSummarized       Stage = "summarized"
	StageAnalyzed         Stage = "analyzed"
	StageFailed           Stage = "failed"
)

// stageOrder ranks stages for funnel-monotonicity checks. Terminal side
// branches (filtered_out, matched_not_selected, failed) share the rank of
// the stage they branch from.
var stageOrder = map[Stage]int{
	StageCollected:        0,
	StageMatched:          1,
	StageFilteredOut:      1,
	StageSelected:         2,
	StageMatchedNotChosen: 2,
	StageScraped:          3,
	StageSummarized:       4,
	StageAnalyzed:         5,
	StageFailed:           3,
}

// CanTransition reports whether moving from one stage to the next respects
// the funnel order.
func CanTransition(from, to Stage) bool {
	a, okA := stageOrder[from]
	b, okB := stageOrder[to]
	return okA && okB && b > a
}

// Item is a candidate article discovered by the collector. Unique by
// NormalizedURL; URLHash is always SHA1(NormalizedURL).
type Item struct {
	ID                    int64      `json:"id"`
	Source                string     `json:"source"`
	RawURL                string     `json:"raw_url"`
	NormalizedURL         string     `json:"normalized_url"`
	URLHash               string     `json:"url_hash"`
	Title                 string     `json:"title,omitempty"`
	PublishedAt           *time.Time `json:"published_at,omitempty"`
	FirstSeenAt           time.Time  `json:"first_seen_at"`
	PipelineStage         Stage      `json:"pipeline_stage"`
	PipelineRunID         string     `json:"pipeline_run_id,omitempty"`
	TriageTopic           string     `json:"triage_topic,omitempty"`
	TriageConfidence      *float64   `json:"triage_confidence,omitempty"`
	IsMatch               bool       `json:"is_match"`
	SelectedForProcessing bool       `json:"selected_for_processing"`
	SelectionRank         *int       `json:"selection_rank,omitempty"`
}

// ExtractionMethod records how an article body was obtained.
type ExtractionMethod string

const (
	ExtractionHeuristic ExtractionMethod = "heuristic"
	ExtractionBrowser   ExtractionMethod = "browser"
	ExtractionFailed    ExtractionMethod = "failed"
)

// ExtractedArticle holds the main text for one Item. Rows are only created
// once the cleaned text reaches the minimum length gate.
type ExtractedArticle struct {
	ItemID            int64            `json:"item_id"`
	ExtractedText     string           `json:"extracted_text"`
	ExtractionMethod  ExtractionMethod `json:"extraction_method"`
	ExtractedAt       time.Time        `json:"extracted_at"`
	FailureCount      int              `json:"failure_count"`
	LastFailureReason string           `json:"last_failure_reason,omitempty"`
}

// Summary is the structured oracle output for one Item.
type Summary struct {
	ItemID              int64               `json:"item_id"`
	Topic               string              `json:"topic"`
	Model               string              `json:"model"`
	Summary             string              `json:"summary"`
	KeyPoints           []string            `json:"key_points"`
	Entities            map[string][]string `json:"entities"`
	CreatedAt           time.Time           `json:"created_at"`
	TopicAlreadyCovered bool                `json:"topic_already_covered"`
	CrossRunClusterID   string              `json:"cross_run_cluster_id,omitempty"`
}

// ClusteringMethod distinguishes the two independent cluster namespaces.
type ClusteringMethod string

const (
	ClusteringGPTTitle          ClusteringMethod = "gpt_title_clustering"
	ClusteringContentSimilarity ClusteringMethod = "content_similarity"
)

// ArticleCluster is one membership row; exactly one member per cluster_id
// carries IsPrimary=true.
type ArticleCluster struct {
	ClusterID        string           `json:"cluster_id"`
	ArticleID        int64            `json:"article_id"`
	IsPrimary        bool             `json:"is_primary"`
	SimilarityScore  float64          `json:"similarity_score"`
	ClusteringMethod ClusteringMethod `json:"clustering_method"`
	CreatedAt        time.Time        `json:"created_at"`
}

// TriageResult is the outcome stored for one classifier decision.
type TriageResult string

const (
	TriageMatched  TriageResult = "matched"
	TriageRejected TriageResult = "rejected"
	TriageError    TriageResult = "error"
)

// ProcessedLink memoizes one classifier decision per (url_hash, topic).
// Absence means "unknown", never "rejected".
type ProcessedLink struct {
	URLHash     string       `json:"url_hash"`
	URL         string       `json:"url"`
	Topic       string       `json:"topic"`
	ProcessedAt time.Time    `json:"processed_at"`
	Result      TriageResult `json:"result"`
	Confidence  float64      `json:"confidence"`
}

// StepName enumerates the five canonical pipeline steps in execution order.
type StepName string

const (
	StepCollection    StepName = "collection"
	StepFiltering     StepName = "filtering"
	StepScraping      StepName = "scraping"
	StepSummarization StepName = "summarization"
	StepAnalysis      StepName = "analysis"
)

// StepOrder is the canonical execution sequence used by the resume logic.
var StepOrder = []StepName{
	StepCollection,
	StepFiltering,
	StepScraping,
	StepSummarization,
	StepAnalysis,
}

// StepStatus is the lifecycle state of one step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepPaused    StepStatus = "paused"
)

// PipelineStepState is the checkpoint row for one (run, step) pair.
type PipelineStepState struct {
	RunID        string     `json:"run_id"`
	StepName     StepName   `json:"step_name"`
	Status       StepStatus `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Metadata     string     `json:"metadata"` // opaque JSON recorded by the step
	ArticleCount int        `json:"article_count"`
	MatchCount   int        `json:"match_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CanResume    bool       `json:"can_resume"`
}

// DigestContent is the persisted digest payload for one (date, topic).
type DigestContent struct {
	Headline     string     `json:"headline"`
	WhyItMatters string     `json:"why_it_matters"`
	Sources      []string   `json:"sources"`
	ArticleCount int        `json:"article_count"`
	GeneratedAt  time.Time  `json:"generated_at"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
}

// DigestState accumulates the per-(date, topic) digest across runs of a day.
type DigestState struct {
	DigestDate          string        `json:"digest_date"` // YYYY-MM-DD
	Topic               string        `json:"topic"`
	ProcessedArticleIDs []int64       `json:"processed_article_ids"`
	Content             DigestContent `json:"digest_content"`
	ArticleCount        int           `json:"article_count"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// TopicSignature is the fingerprint of one covered story, used to detect
// same-day topic reoccurrence on later runs.
type TopicSignature struct {
	SignatureID     string    `json:"signature_id"`
	Date            string    `json:"date"` // YYYY-MM-DD
	ArticleSummary  string    `json:"article_summary"`
	TopicTheme      string    `json:"topic_theme"`
	SourceArticleID int64     `json:"source_article_id"`
	RunSequence     int       `json:"run_sequence"`
	CreatedAt       time.Time `json:"created_at"`
}

// DedupDecision is the outcome of one cross-run comparison.
type DedupDecision string

const (
	DedupDuplicate DedupDecision = "DUPLICATE"
	DedupUnique    DedupDecision = "UNIQUE"
)

// DeduplicationLogEntry is the audit record for one cross-run comparison.
type DeduplicationLogEntry struct {
	Date               string        `json:"date"`
	NewArticleID       int64         `json:"new_article_id"`
	MatchedSignatureID string        `json:"matched_signature_id,omitempty"`
	Decision           DedupDecision `json:"decision"`
	ConfidenceScore    *float64      `json:"confidence_score,omitempty"`
	ProcessingTime     time.Duration `json:"processing_time"`
	CreatedAt          time.Time     `json:"created_at"`
}

// GenerationType classifies one digest-builder invocation.
type GenerationType string

const (
	GenerationFull        GenerationType = "full"
	GenerationIncremental GenerationType = "incremental"
	GenerationCached      GenerationType = "cached"
)

// DigestGenerationLog records timing and oracle usage for one digest build.
type DigestGenerationLog struct {
	DigestDate      string         `json:"digest_date"`
	GenerationType  GenerationType `json:"generation_type"`
	TopicsProcessed int            `json:"topics_processed"`
	TotalArticles   int            `json:"total_articles"`
	NewArticles     int            `json:"new_articles"`
	APICallsMade    int            `json:"api_calls_made"`
	ExecutionTime   float64        `json:"execution_time_seconds"`
	CreatedAt       time.Time      `json:"created_at"`
}
