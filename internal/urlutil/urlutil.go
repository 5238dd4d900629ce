// Package urlutil canonicalizes article URLs and produces the stable
// content-addressable keys used across the store.
package urlutil

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are query keys stripped during normalization. Keys with a
// "WT." prefix (Webtrends) are stripped by prefix match.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"gclid":        true,
	"fbclid":       true,
	"dclid":        true,
	"gbraid":       true,
	"wbraid":       true,
}

// Normalize canonicalizes a URL: lowercases scheme and host, drops the
// fragment, removes known tracking parameters and re-encodes the remaining
// query in stable key order. Normalize is idempotent.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL %q has no scheme or host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if isTrackingParam(key) {
			q.Del(key)
		}
	}
	u.RawQuery = stableEncode(q)

	return u.String(), nil
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if trackingParams[lower] {
		return true
	}
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return strings.HasPrefix(key, "WT.") || strings.HasPrefix(lower, "wt.")
}

// stableEncode encodes query values sorted by key so that parameter order
// never changes the hash.
func stableEncode(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := q[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Hash returns the SHA1 hex digest of a normalized URL.
func Hash(normalizedURL string) string {
	sum := sha1.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// NormalizeAndHash is the common path: canonicalize then hash.
func NormalizeAndHash(rawURL string) (normalized, hash string, err error) {
	normalized, err = Normalize(rawURL)
	if err != nil {
		return "", "", err
	}
	return normalized, Hash(normalized), nil
}

var punctRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// titleTokens lowercases a title, strips punctuation and splits into words.
func titleTokens(title string) map[string]bool {
	cleaned := punctRegex.ReplaceAllString(strings.ToLower(title), " ")
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(cleaned) {
		tokens[w] = true
	}
	return tokens
}

// TitleJaccard computes the Jaccard similarity over word tokens of two
// titles. Empty titles yield 0.
func TitleJaccard(a, b string) float64 {
	ta := titleTokens(a)
	tb := titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for w := range ta {
		if tb[w] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
