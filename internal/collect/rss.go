package collect

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// rssItem is one RSS <item>.
type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	GUID    string `xml:"guid"`
}

// atomEntry is one Atom <entry>.
type atomEntry struct {
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
}

// parseFeed extracts candidates from an RSS or Atom document. The parser is
// item-wise: one malformed entry never discards the recoverable rest.
func parseFeed(source string, data []byte, loc *time.Location) ([]Candidate, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false

	var candidates []Candidate
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed surroundings; keep what we already have.
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "item":
			var item rssItem
			if err := decoder.DecodeElement(&item, &start); err != nil {
				continue
			}
			link := strings.TrimSpace(item.Link)
			if link == "" {
				link = strings.TrimSpace(item.GUID)
			}
			if link == "" {
				continue
			}
			candidates = append(candidates, Candidate{
				Source:      source,
				RawURL:      link,
				Title:       strings.TrimSpace(item.Title),
				PublishedAt: ParseLenientDate(item.PubDate, loc),
			})
		case "entry":
			var entry atomEntry
			if err := decoder.DecodeElement(&entry, &start); err != nil {
				continue
			}
			var link string
			for _, l := range entry.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			if link == "" {
				continue
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			candidates = append(candidates, Candidate{
				Source:      source,
				RawURL:      strings.TrimSpace(link),
				Title:       strings.TrimSpace(entry.Title),
				PublishedAt: ParseLenientDate(published, loc),
			})
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no recoverable entries in feed from %s", source)
	}
	return candidates, nil
}
