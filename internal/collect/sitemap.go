package collect

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// sitemapURL is one <url> element, including the news-sitemap extension.
type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
	News    struct {
		Title           string `xml:"title"`
		PublicationDate string `xml:"publication_date"`
	} `xml:"news"`
}

// parseSitemap extracts candidates from an XML sitemap, honouring the
// news-sitemap namespace for title and publication date when present.
// Like the feed parser it recovers entry-wise.
func parseSitemap(source string, data []byte, loc *time.Location) ([]Candidate, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	var candidates []Candidate
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "url" {
			continue
		}

		var entry sitemapURL
		if err := decoder.DecodeElement(&entry, &start); err != nil {
			continue
		}
		u := strings.TrimSpace(entry.Loc)
		if u == "" {
			continue
		}

		published := entry.News.PublicationDate
		if published == "" {
			published = entry.LastMod
		}
		candidates = append(candidates, Candidate{
			Source:      source,
			RawURL:      u,
			Title:       strings.TrimSpace(entry.News.Title),
			PublishedAt: ParseLenientDate(published, loc),
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no recoverable URLs in sitemap from %s", source)
	}
	return candidates, nil
}
