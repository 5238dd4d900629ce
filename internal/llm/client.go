package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"riskradar/internal/logger"
)

const maxAttempts = 3

// Client talks to the oracle. Model tiers: nano for triage and clustering,
// mini for summaries and comparisons, analysis for digest synthesis.
type Client struct {
	gClient       *genai.Client
	nanoModel     string
	miniModel     string
	analysisModel string
}

// NewClient creates the oracle client. The API key comes from GEMINI_API_KEY
// or GOOGLE_API_KEY.
func NewClient(ctx context.Context, nanoModel, miniModel, analysisModel string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("oracle API key is required; set GEMINI_API_KEY")
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle client: %w", err)
	}

	return &Client{
		gClient:       gClient,
		nanoModel:     nanoModel,
		miniModel:     miniModel,
		analysisModel: analysisModel,
	}, nil
}

// generateText runs one free-form completion.
func (c *Client) generateText(ctx context.Context, model, prompt string) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return "", err
			}
		}
		resp, err := c.gClient.Models.GenerateContent(ctx, model, contents, nil)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			continue
		}
		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("empty response from model %s", model)
			continue
		}
		return text, nil
	}
	return "", fmt.Errorf("failed to generate content: %w", lastErr)
}

// generateJSON runs one schema-constrained completion and decodes the
// response into out. Shape violations fail closed.
func (c *Client) generateJSON(ctx context.Context, model, prompt string, schema *genai.Schema, out any) error {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return err
			}
		}
		resp, err := c.gClient.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			continue
		}
		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("empty response from model %s", model)
			continue
		}
		if err := json.Unmarshal([]byte(text), out); err != nil {
			// The schema should prevent this; a malformed body is a
			// per-row failure, not worth another attempt.
			return fmt.Errorf("oracle returned invalid JSON: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to generate structured content: %w", lastErr)
}

// isRetryable treats rate limits and transient transport faults as
// retryable; schema and auth errors are not.
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline")
}

func backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	logger.Debug("Backing off before oracle retry", "attempt", attempt, "delay", delay.String())
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Triage classifies one (title, URL) candidate for a topic.
func (c *Client) Triage(ctx context.Context, description string, keywords []string,
	focusAreas map[string][]string, req TriageRequest) (TriageVerdict, error) {
	prompt := BuildTriagePrompt(description, keywords, focusAreas, req)

	var verdict TriageVerdict
	if err := c.generateJSON(ctx, c.nanoModel, prompt, triageSchema(), &verdict); err != nil {
		return TriageVerdict{}, err
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return TriageVerdict{}, fmt.Errorf("oracle confidence %f outside [0,1]", verdict.Confidence)
	}
	if len(verdict.Reason) > 200 {
		verdict.Reason = verdict.Reason[:200]
	}
	return verdict, nil
}

// Summarize produces the structured per-article summary.
func (c *Client) Summarize(ctx context.Context, title, url, content string) (ArticleSummary, error) {
	prompt := BuildSummaryPrompt(title, url, content)

	var sum ArticleSummary
	if err := c.generateJSON(ctx, c.miniModel, prompt, summarySchema(), &sum); err != nil {
		return ArticleSummary{}, err
	}
	if sum.Summary == "" || len(sum.KeyPoints) == 0 {
		return ArticleSummary{}, fmt.Errorf("oracle summary missing required fields")
	}
	return sum, nil
}

// ClusterTitles asks the oracle to group same-story titles and returns the
// raw line-oriented response; parsing happens in the cluster package.
func (c *Client) ClusterTitles(ctx context.Context, titles []string) (string, error) {
	return c.generateText(ctx, c.nanoModel, BuildTitleClusteringPrompt(titles))
}

// CompareTopics asks whether the new summary re-covers a previous signature
// and returns the raw YES/NO response.
func (c *Client) CompareTopics(ctx context.Context, previous []string, title, summary string) (string, error) {
	return c.generateText(ctx, c.miniModel, BuildTopicComparisonPrompt(previous, title, summary))
}

// GenerateFullDigest builds the first digest of a (date, topic).
func (c *Client) GenerateFullDigest(ctx context.Context, topic string, inputs []DigestInput) (DigestDraft, error) {
	prompt := BuildFullDigestPrompt(topic, inputs)

	var draft DigestDraft
	if err := c.generateJSON(ctx, c.analysisModel, prompt, fullDigestSchema(), &draft); err != nil {
		return DigestDraft{}, err
	}
	if draft.Headline == "" {
		return DigestDraft{}, fmt.Errorf("oracle digest missing headline")
	}
	return draft, nil
}

// GeneratePartialDigest summarizes only the newly processed articles.
func (c *Client) GeneratePartialDigest(ctx context.Context, topic string, inputs []DigestInput) (PartialDigest, error) {
	prompt := BuildPartialDigestPrompt(topic, inputs)

	var partial PartialDigest
	if err := c.generateJSON(ctx, c.analysisModel, prompt, partialDigestSchema(), &partial); err != nil {
		return PartialDigest{}, err
	}
	if len(partial.KeyInsights) > 5 {
		partial.KeyInsights = partial.KeyInsights[:5]
	}
	if len(partial.ImportantDevelopments) > 3 {
		partial.ImportantDevelopments = partial.ImportantDevelopments[:3]
	}
	return partial, nil
}

// MergeDigest folds a partial digest into the existing one.
func (c *Client) MergeDigest(ctx context.Context, topic string, existing DigestDraft, partial PartialDigest) (DigestDraft, error) {
	prompt := BuildMergeDigestPrompt(topic, existing, partial)

	var merged DigestDraft
	if err := c.generateJSON(ctx, c.analysisModel, prompt, fullDigestSchema(), &merged); err != nil {
		return DigestDraft{}, err
	}
	if merged.Headline == "" {
		return DigestDraft{}, fmt.Errorf("oracle merge missing headline")
	}
	return merged, nil
}
