// Package filter applies keyword and freshness rules to fetched candidate
// items and assigns content fingerprints for deduplication.
package filter

import (
	"strings"
	"time"

	"news-collector/internal/news_collector/model"
)

// Apply keeps an item iff no exclude keyword matches, at least one include
// keyword matches (or none are configured), and its publish time falls inside
// the lookback window ending at now. Items without a publish time pass the
// freshness rule. Source order is preserved; duplicate fingerprints collapse
// to the earliest-seen item.
func Apply(items []model.CandidateItem, source model.SourceConfig, now time.Time, lookback time.Duration) []model.FilteredItem {
	cutoff := now.Add(-lookback)
	seen := make(map[string]bool, len(items))
	out := make([]model.FilteredItem, 0, len(items))

	for _, it := range items {
		haystack := strings.ToLower(it.Title + " " + it.RawExcerpt)

		// 排除词优先：命中任何一个就丢弃，无论 include 是否也命中
		if matchesAny(haystack, source.ExcludeKeywords) {
			continue
		}
		if len(source.Keywords) > 0 && !matchesAny(haystack, source.Keywords) {
			continue
		}
		if !it.PublishedAt.IsZero() {
			if it.PublishedAt.Before(cutoff) || it.PublishedAt.After(now.Add(time.Hour)) {
				continue
			}
		}

		fp := Fingerprint(it.Title, it.URL)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, model.FilteredItem{CandidateItem: it, Fingerprint: fp})
	}
	return out
}

func matchesAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
