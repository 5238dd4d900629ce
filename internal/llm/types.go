// Package llm wraps the chat-completion oracle behind typed, JSON-schema
// constrained contracts. Every consumer depends on a narrow interface so
// tests substitute fakes; only this package talks to the service.
package llm

import "time"

// TriageRequest is the per-candidate payload for relevance classification.
type TriageRequest struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Topic         string  `json:"topic"`
	PriorityScore float64 `json:"priority_score,omitempty"`
	SourceTier    float64 `json:"source_tier,omitempty"`
}

// TriageVerdict is the schema-validated classifier output.
type TriageVerdict struct {
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
	Topic      string  `json:"topic"`
	Reason     string  `json:"reason"`
}

// ArticleSummary is the schema-validated summarizer output.
type ArticleSummary struct {
	Title     string              `json:"title"`
	Summary   string              `json:"summary"`
	KeyPoints []string            `json:"key_points"`
	Entities  map[string][]string `json:"entities"`
}

// DigestDraft is the schema-validated full-digest / merge output.
type DigestDraft struct {
	Headline     string    `json:"headline"`
	WhyItMatters string    `json:"why_it_matters"`
	Sources      []string  `json:"sources"`
	ArticleCount int       `json:"article_count"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// PartialDigest is the schema-validated incremental-digest output covering
// only the newly processed articles of a run.
type PartialDigest struct {
	KeyInsights           []string  `json:"key_insights"`
	ImportantDevelopments []string  `json:"important_developments"`
	NewSources            []string  `json:"new_sources"`
	EntitiesMentioned     []string  `json:"entities_mentioned"`
	ArticleCount          int       `json:"article_count"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// DigestInput is one summary handed to the digest builder prompts.
type DigestInput struct {
	Title   string
	URL     string
	Summary string
}
