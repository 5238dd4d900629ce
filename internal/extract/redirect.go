package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"riskradar/internal/fetch"
)

// resolveTimeout bounds the whole redirector resolution for one URL.
const resolveTimeout = 30 * time.Second

var aggregatorHosts = []string{
	"news.google.com",
	"news.url.google.com",
}

// IsAggregatorURL reports whether the URL points at a known news-aggregator
// redirector rather than a publisher page.
func IsAggregatorURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return isAggregatorHost(u.Host)
}

func isAggregatorHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range aggregatorHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

var (
	urlInTextRegex   = regexp.MustCompile(`https?://[A-Za-z0-9._~:/?#@!$&*+,;=%()\-]+`)
	metaRefreshRegex = regexp.MustCompile(`(?i)url\s*=\s*(\S+)`)
	locationRegex    = regexp.MustCompile(`(?i)location(?:\.href)?\s*(?:=|\.replace\()\s*["']([^"']+)["']`)
	staticAssetRegex = regexp.MustCompile(`(?i)\.(?:js|css|png|jpe?g|gif|svg|ico|webp|woff2?|ttf|mp4|pdf)(?:\?|$)`)
)

// Resolver turns aggregator redirector URLs into publisher URLs. It decodes
// base64 path segments first and only fetches the redirector page when that
// fails.
type Resolver struct {
	client  *fetch.Client
	browser *BrowserClient
}

// NewResolver creates a resolver. browser may be nil.
func NewResolver(client *fetch.Client, browser *BrowserClient) *Resolver {
	return &Resolver{client: client, browser: browser}
}

// Resolve returns the publisher URL behind a redirector. The whole attempt
// is bounded by a single deadline.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	if target := decodePathSegments(rawURL); target != "" {
		return target, nil
	}

	target, err := r.resolveViaPage(ctx, rawURL)
	if err == nil && target != "" {
		return target, nil
	}

	if r.browser != nil {
		if target, berr := r.browser.ResolveURL(ctx, rawURL); berr == nil && validResolvedURL(target) {
			return target, nil
		}
	}
	if err != nil {
		return "", err
	}
	return "", fmt.Errorf("no publisher URL found behind %s", rawURL)
}

// decodePathSegments base64-decodes each path segment and returns the first
// valid non-aggregator URL embedded in the decoded bytes.
func decodePathSegments(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if len(segment) < 20 {
			continue
		}
		for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
			decoded, err := enc.DecodeString(segment)
			if err != nil {
				continue
			}
			for _, match := range urlInTextRegex.FindAll(decoded, -1) {
				if candidate := string(match); validResolvedURL(candidate) {
					return candidate
				}
			}
		}
	}
	return ""
}

// resolveViaPage fetches the redirector page and inspects meta refresh,
// location script assignments and direct anchors.
func (r *Resolver) resolveViaPage(ctx context.Context, rawURL string) (string, error) {
	body, err := r.client.Get(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch redirector page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse redirector page: %w", err)
	}

	var fromMeta string
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.EqualFold(sel.AttrOr("http-equiv", ""), "refresh") {
			return true
		}
		if m := metaRefreshRegex.FindStringSubmatch(sel.AttrOr("content", "")); m != nil {
			candidate := strings.Trim(m[1], `"';`)
			if validResolvedURL(candidate) {
				fromMeta = candidate
				return false
			}
		}
		return true
	})
	if fromMeta != "" {
		return fromMeta, nil
	}

	var fromScript string
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := locationRegex.FindStringSubmatch(sel.Text()); m != nil && validResolvedURL(m[1]) {
			fromScript = m[1]
			return false
		}
		return true
	})
	if fromScript != "" {
		return fromScript, nil
	}

	var fromAnchor string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href := sel.AttrOr("href", "")
		if validResolvedURL(href) {
			fromAnchor = href
			return false
		}
		return true
	})
	return fromAnchor, nil
}

// validResolvedURL applies the acceptance rules for a resolved candidate:
// http(s), non-aggregator host, not a static asset, sane length.
func validResolvedURL(candidate string) bool {
	if len(candidate) < 20 || len(candidate) > 500 {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" || isAggregatorHost(u.Host) {
		return false
	}
	if staticAssetRegex.MatchString(u.Path) {
		return false
	}
	return true
}
