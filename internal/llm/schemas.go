package llm

import "google.golang.org/genai"

// triageSchema constrains the classifier output. The oracle must answer
// with exactly these fields; anything else fails closed.
func triageSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"is_match": {
				Type:        genai.TypeBoolean,
				Description: "Whether the article is relevant to the topic",
			},
			"confidence": {
				Type:        genai.TypeNumber,
				Description: "Confidence in the verdict, 0.0 to 1.0",
			},
			"topic": {
				Type:        genai.TypeString,
				Description: "The topic the verdict refers to",
			},
			"reason": {
				Type:        genai.TypeString,
				Description: "Short justification, at most 200 characters",
			},
		},
		Required: []string{"is_match", "confidence", "topic", "reason"},
	}
}

// summarySchema constrains the per-article structured summary.
func summarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: "Cleaned article title",
			},
			"summary": {
				Type:        genai.TypeString,
				Description: "150-200 word summary of the article",
			},
			"key_points": {
				Type:        genai.TypeArray,
				Description: "3-6 key bullet points",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"entities": {
				Type:        genai.TypeObject,
				Description: "Named entities grouped by category (companies, people, locations, regulators)",
				Properties: map[string]*genai.Schema{
					"companies":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"people":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"locations":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
					"regulators": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				},
			},
		},
		Required: []string{"title", "summary", "key_points"},
	}
}

// fullDigestSchema constrains the first digest of a (date, topic).
func fullDigestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"headline": {
				Type:        genai.TypeString,
				Description: "One-line headline capturing the day's dominant story",
			},
			"why_it_matters": {
				Type:        genai.TypeString,
				Description: "2-3 sentences on credit-risk relevance",
			},
			"sources": {
				Type:        genai.TypeArray,
				Description: "Source URLs of the contributing articles",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"headline", "why_it_matters", "sources"},
	}
}

// partialDigestSchema constrains the incremental digest over new articles.
func partialDigestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"key_insights": {
				Type:        genai.TypeArray,
				Description: "Up to 5 insights from the new articles",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"important_developments": {
				Type:        genai.TypeArray,
				Description: "Up to 3 developments that change the picture",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
			"new_sources": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"entities_mentioned": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"key_insights", "new_sources"},
	}
}
