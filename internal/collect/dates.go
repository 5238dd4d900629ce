package collect

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// swissDateRegex matches DD.MM.YYYY and DD.MM.YY forms common on Swiss
// sites, optionally followed by a time.
var swissDateRegex = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{2,4})(?:[ ,]+(\d{1,2}):(\d{2}))?`)

// knownLayouts are tried in order for feed and listing dates.
var knownLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseLenientDate parses dates from heterogeneous sources. It tries the
// common feed layouts first, then Swiss DD.MM.YY(YY) forms with pivot year
// 50 (YY < 50 resolves to 20YY, otherwise 19YY). Returns nil when nothing
// parses.
func ParseLenientDate(value string, loc *time.Location) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range knownLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}

	if m := swissDateRegex.FindStringSubmatch(value); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
		hour, minute := 0, 0
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
		}
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc).UTC()
			return &t
		}
	}

	return nil
}
