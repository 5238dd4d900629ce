package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// heuristicMinChars is the point below which the heuristic pass is
// considered to have missed the article body.
const heuristicMinChars = 100

// contentSelectors is the cascade tried for the main article container,
// most specific first.
var contentSelectors = []string{
	"article",
	"main",
	"[itemprop='articleBody']",
	"div.article-body",
	"div.article__body",
	"div.articleBody",
	"div.post-content",
	"div.entry-content",
	"div.content",
}

// textSelectors picks the text-bearing elements inside a container. Tables
// are included: official gazette notices often carry the substance there.
const textSelectors = "p, h1, h2, h3, li, td, th, blockquote"

var whitespaceRegex = regexp.MustCompile(`\s+`)

// ExtractArticleText pulls the main article text out of an HTML page. It
// favours recall: a selector cascade over known containers, then a JSON-LD
// articleBody fallback, then a bare whole-page extraction.
func ExtractArticleText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse article HTML: %w", err)
	}

	// Capture structured data before boilerplate removal drops the scripts.
	ldBody := jsonLDArticleBody(doc)

	doc.Find("script, style, nav, header, footer, aside, form, noscript, iframe").Remove()

	for _, selector := range contentSelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}
		if text := collectText(container); len(text) >= heuristicMinChars {
			return text, nil
		}
	}

	if len(ldBody) >= heuristicMinChars {
		return ldBody, nil
	}

	// Bare extraction over the whole document.
	return collectText(doc.Find("body")), nil
}

// collectText gathers and deduplicates the text blocks of a container.
func collectText(container *goquery.Selection) string {
	seen := make(map[string]bool)
	var blocks []string
	container.Find(textSelectors).Each(func(_ int, sel *goquery.Selection) {
		text := cleanText(sel.Text())
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		blocks = append(blocks, text)
	})
	if len(blocks) == 0 {
		return cleanText(container.Text())
	}
	return strings.Join(blocks, "\n\n")
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// jsonLDArticleBody scans every ld+json script for an articleBody field at
// any depth.
func jsonLDArticleBody(doc *goquery.Document) string {
	var body string
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var node any
		if err := json.Unmarshal([]byte(sel.Text()), &node); err != nil {
			return true
		}
		if found := findArticleBody(node); found != "" {
			body = cleanText(found)
			return false
		}
		return true
	})
	return body
}

func findArticleBody(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if body, ok := v["articleBody"].(string); ok && body != "" {
			return body
		}
		for _, child := range v {
			if found := findArticleBody(child); found != "" {
				return found
			}
		}
	case []any:
		for _, child := range v {
			if found := findArticleBody(child); found != "" {
				return found
			}
		}
	}
	return ""
}
