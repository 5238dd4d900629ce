package llm

import (
	"fmt"
	"strings"
)

// BuildTriagePrompt encodes the topic's description, keywords and priority
// tiers into the classifier system context, followed by the candidate.
func BuildTriagePrompt(description string, keywords []string, focusAreas map[string][]string, req TriageRequest) string {
	var b strings.Builder
	b.WriteString("You triage Swiss business news for relevance to a business-credit-risk topic.\n\n")
	b.WriteString("Topic: ")
	b.WriteString(req.Topic)
	b.WriteString("\nDescription: ")
	b.WriteString(description)
	b.WriteString("\nKeywords: ")
	b.WriteString(strings.Join(keywords, ", "))
	if len(focusAreas) > 0 {
		b.WriteString("\nFocus areas:")
		for area, kws := range focusAreas {
			b.WriteString(fmt.Sprintf("\n  - %s: %s", area, strings.Join(kws, ", ")))
		}
	}
	b.WriteString("\n\nDecide whether the following candidate belongs to the topic. ")
	b.WriteString("Judge from title and URL only; do not invent content. ")
	b.WriteString("Answer with is_match, confidence in [0,1], the topic name, and a reason of at most 200 characters.\n\n")
	b.WriteString(fmt.Sprintf("Title: %s\nURL: %s\n", req.Title, req.URL))
	if req.PriorityScore > 0 {
		b.WriteString(fmt.Sprintf("Priority score: %.2f\nSource tier: %.1f\n", req.PriorityScore, req.SourceTier))
	}
	return b.String()
}

// BuildSummaryPrompt asks for the structured per-article summary.
func BuildSummaryPrompt(title, url, content string) string {
	return fmt.Sprintf(`Summarize the following news article for a business-credit-risk analyst.

Write the summary in 150-200 words, extract 3-6 key points, and list named
entities grouped by category (companies, people, locations, regulators).
Stay strictly within what the article says.

Title: %s
URL: %s

Article:
%s`, title, url, content)
}

// BuildTitleClusteringPrompt numbers the titles and asks for one
// "<index>, <GroupLabel>" line per title.
func BuildTitleClusteringPrompt(titles []string) string {
	var b strings.Builder
	b.WriteString("The following numbered list contains news article titles from one day.\n")
	b.WriteString("Group titles that describe the same story. Reply with exactly one line per title\n")
	b.WriteString("in the form \"<index>, <Group-label>\" where titles about the same story share a label.\n")
	b.WriteString("Use a short descriptive label. No other text.\n\n")
	for i, title := range titles {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, title))
	}
	return b.String()
}

// BuildTopicComparisonPrompt asks whether a new summary re-covers one of
// the previously stored signatures. The answer must begin with YES or NO.
func BuildTopicComparisonPrompt(previous []string, title, summary string) string {
	var b strings.Builder
	b.WriteString("Earlier today the following stories were already covered:\n\n")
	for i, p := range previous {
		b.WriteString(fmt.Sprintf("[%d] %s\n", i+1, p))
	}
	b.WriteString("\nNew article:\nTitle: ")
	b.WriteString(title)
	b.WriteString("\nSummary: ")
	b.WriteString(summary)
	b.WriteString("\n\nDoes the new article cover the same topic as any of the earlier stories?\n")
	b.WriteString("Answer starting with YES or NO. If YES, name the matching number, e.g. \"YES [2]\".")
	return b.String()
}

// BuildFullDigestPrompt asks for the first digest of a (date, topic).
func BuildFullDigestPrompt(topic string, inputs []DigestInput) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Create a daily digest for the topic %q from today's article summaries.\n", topic))
	b.WriteString("Produce a single headline for the dominant story, 2-3 sentences on why it matters\n")
	b.WriteString("for business credit risk, and the list of source URLs.\n\n")
	writeDigestInputs(&b, inputs)
	return b.String()
}

// BuildPartialDigestPrompt asks for insights covering only new articles.
func BuildPartialDigestPrompt(topic string, inputs []DigestInput) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("New articles arrived for the topic %q after the daily digest was first built.\n", topic))
	b.WriteString("Extract up to 5 key insights and up to 3 important developments from the new\n")
	b.WriteString("articles only, plus their source URLs and the entities mentioned.\n\n")
	writeDigestInputs(&b, inputs)
	return b.String()
}

// BuildMergeDigestPrompt combines the existing digest with a partial update.
func BuildMergeDigestPrompt(topic string, existing DigestDraft, partial PartialDigest) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Merge the existing daily digest for topic %q with the new findings.\n", topic))
	b.WriteString("Keep the headline stable unless the new developments clearly overtake it.\n")
	b.WriteString("Return headline, why_it_matters and the combined source list.\n\n")
	b.WriteString("Existing digest:\n")
	b.WriteString(fmt.Sprintf("Headline: %s\nWhy it matters: %s\nSources: %s\n\n",
		existing.Headline, existing.WhyItMatters, strings.Join(existing.Sources, ", ")))
	b.WriteString("New findings:\n")
	for _, insight := range partial.KeyInsights {
		b.WriteString("- " + insight + "\n")
	}
	for _, dev := range partial.ImportantDevelopments {
		b.WriteString("- " + dev + "\n")
	}
	b.WriteString("New sources: " + strings.Join(partial.NewSources, ", "))
	return b.String()
}

func writeDigestInputs(b *strings.Builder, inputs []DigestInput) {
	for i, in := range inputs {
		b.WriteString(fmt.Sprintf("Article %d: %s\nURL: %s\nSummary: %s\n\n", i+1, in.Title, in.URL, in.Summary))
	}
}
