package collect

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"riskradar/internal/config"
)

// parseHTMLListing extracts candidates from a listing page using the
// configured CSS selector triplet. The hidden_url selector, when set,
// reads the link from a data attribute instead of the item's anchor.
func parseHTMLListing(source string, data []byte, src config.HTMLSource, loc *time.Location) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing from %s: %w", source, err)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing base URL %s: %w", src.URL, err)
	}

	var candidates []Candidate
	doc.Find(src.Selectors.Item).Each(func(_ int, item *goquery.Selection) {
		link := extractListingURL(item, src.Selectors)
		if link == "" {
			return
		}
		resolved := resolveRelative(base, link)
		if resolved == "" {
			return
		}

		title := strings.TrimSpace(item.Find(src.Selectors.Title).First().Text())
		var published *time.Time
		if src.Selectors.Date != "" {
			dateSel := item.Find(src.Selectors.Date).First()
			dateText := dateSel.AttrOr("datetime", "")
			if dateText == "" {
				dateText = dateSel.Text()
			}
			published = ParseLenientDate(dateText, loc)
		}

		candidates = append(candidates, Candidate{
			Source:      source,
			RawURL:      resolved,
			Title:       title,
			PublishedAt: published,
		})
	})

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no items matched selectors on listing %s", source)
	}
	return candidates, nil
}

// extractListingURL prefers the hidden-url selector, then the item's own
// href, then the first anchor inside the item.
func extractListingURL(item *goquery.Selection, sel config.HTMLSelectors) string {
	if sel.HiddenURL != "" {
		hidden := item.Find(sel.HiddenURL).First()
		for _, attr := range []string{"data-href", "data-url", "href"} {
			if v, ok := hidden.Attr(attr); ok && v != "" {
				return v
			}
		}
	}
	if v, ok := item.Attr("href"); ok && v != "" {
		return v
	}
	if v, ok := item.Find("a").First().Attr("href"); ok && v != "" {
		return v
	}
	return ""
}

func resolveRelative(base *url.URL, link string) string {
	ref, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
