package collect

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"riskradar/internal/config"
)

var pathIndexRegex = regexp.MustCompile(`^(.*)\[(\d+)\]$`)

// resolvePath walks a dotted path like "data.items[0].articles" through
// decoded JSON. Each segment may carry one trailing [index].
func resolvePath(doc any, path string) (any, error) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}

		index := -1
		if m := pathIndexRegex.FindStringSubmatch(segment); m != nil {
			segment = m[1]
			index, _ = strconv.Atoi(m[2])
		}

		if segment != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("path segment %q applied to non-object", segment)
			}
			current, ok = obj[segment]
			if !ok {
				return nil, fmt.Errorf("path segment %q not found", segment)
			}
		}

		if index >= 0 {
			arr, ok := current.([]any)
			if !ok {
				return nil, fmt.Errorf("index [%d] applied to non-array", index)
			}
			if index >= len(arr) {
				return nil, fmt.Errorf("index [%d] out of range", index)
			}
			current = arr[index]
		}
	}
	return current, nil
}

// parseJSONAPI extracts candidates from a JSON API response using the
// configured item path and per-field extractors.
func parseJSONAPI(source string, data []byte, src config.JSONSource, loc *time.Location) ([]Candidate, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON from %s: %w", source, err)
	}

	node, err := resolvePath(doc, src.ItemPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve item path %q: %w", src.ItemPath, err)
	}
	items, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("item path %q does not point at an array", src.ItemPath)
	}

	var candidates []Candidate
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		rawURL := stringField(obj, src.Fields.URL)
		if rawURL == "" {
			continue
		}
		var published *time.Time
		if v := stringField(obj, src.Fields.PublishedAt); v != "" {
			published = ParseLenientDate(v, loc)
		}
		candidates = append(candidates, Candidate{
			Source:      source,
			RawURL:      rawURL,
			Title:       stringField(obj, src.Fields.Title),
			PublishedAt: published,
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no items extracted from JSON API %s", source)
	}
	return candidates, nil
}

// stringField resolves a (possibly dotted) field inside one item object.
func stringField(obj map[string]any, field string) string {
	if field == "" {
		return ""
	}
	node, err := resolvePath(obj, field)
	if err != nil {
		return ""
	}
	switch v := node.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
