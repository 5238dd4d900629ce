package classify

import (
	"net/url"
	"strings"
	"time"

	"riskradar/internal/core"
)

// Source tiers are keyed by host substring. Regulators and official
// gazettes outrank financial press, which outranks generalist outlets.
const (
	tierGovernment = 3.0
	tierFinancial  = 2.0
	tierGeneralist = 1.0
	tierUnknown    = 0.5
)

var governmentHosts = []string{
	"admin.ch", "shab.ch", "seco.", "finma.ch", "zefix.ch", "snb.ch",
}

var financialHosts = []string{
	"handelszeitung.ch", "finews.ch", "cash.ch", "fuw.ch",
	"moneyhouse.ch", "bilanz.ch", "awp.ch",
}

var generalistHosts = []string{
	"nzz.ch", "tagesanzeiger.ch", "blick.ch", "srf.ch",
	"20min.ch", "watson.ch", "luzernerzeitung.ch", "aargauerzeitung.ch",
}

// SourceTier returns the fixed-table score for a host.
func SourceTier(host string) float64 {
	host = strings.ToLower(host)
	for _, h := range governmentHosts {
		if strings.Contains(host, h) {
			return tierGovernment
		}
	}
	for _, h := range financialHosts {
		if strings.Contains(host, h) {
			return tierFinancial
		}
	}
	for _, h := range generalistHosts {
		if strings.Contains(host, h) {
			return tierGeneralist
		}
	}
	return tierUnknown
}

// PriorityScore orders candidates before the per-mode cap: source tier,
// plus freshness decay (1.0 at day zero, -0.1 per day, floor 0.1), plus a
// bonus for article-looking paths and for clean query strings.
func PriorityScore(item core.Item, now time.Time) float64 {
	u, err := url.Parse(item.NormalizedURL)
	if err != nil {
		return tierUnknown
	}

	score := SourceTier(u.Host)
	score += freshness(item, now)
	if strings.Contains(u.Path, "/artikel/") || strings.Contains(u.Path, "/news/") {
		score += 0.3
	}
	if u.RawQuery == "" {
		score += 0.2
	}
	return score
}

func freshness(item core.Item, now time.Time) float64 {
	ref := item.FirstSeenAt
	if item.PublishedAt != nil {
		ref = *item.PublishedAt
	}
	days := int(now.Sub(ref).Hours() / 24)
	if days < 0 {
		days = 0
	}
	score := 1.0 - 0.1*float64(days)
	if score < 0.1 {
		return 0.1
	}
	return score
}
