package filter

import (
	"testing"
	"time"

	"news-collector/internal/news_collector/model"
)

func candidate(title, url string, published time.Time, excerpt string) model.CandidateItem {
	return model.CandidateItem{
		SourceName:  "test-source",
		Title:       title,
		URL:         url,
		PublishedAt: published,
		RawExcerpt:  excerpt,
	}
}

func TestApplyKeywordFilter(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := model.SourceConfig{
		Name:     "tech",
		Keywords: []string{"AI", "芯片"},
	}
	items := []model.CandidateItem{
		candidate("AI chip breakthrough announced", "https://example.com/a", now.Add(-time.Hour), ""),
		candidate("Football season opens", "https://example.com/b", now.Add(-time.Hour), ""),
		candidate("国产芯片新进展", "https://example.com/c", now.Add(-2*time.Hour), ""),
		candidate("Weather outlook", "https://example.com/d", now.Add(-time.Hour), "AI models improve forecasts"),
	}

	got := Apply(items, source, now, 24*time.Hour)
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	// 顺序必须保持来源顺序
	wantURLs := []string{"https://example.com/a", "https://example.com/c", "https://example.com/d"}
	for i, w := range wantURLs {
		if got[i].URL != w {
			t.Errorf("item %d: got %s, want %s", i, got[i].URL, w)
		}
	}
}

func TestApplyExcludeWinsOverInclude(t *testing.T) {
	t.Parallel()
	now := time.Now()
	source := model.SourceConfig{
		Name:            "tech",
		Keywords:        []string{"ai"},
		ExcludeKeywords: []string{"advertisement"},
	}
	items := []model.CandidateItem{
		candidate("AI special advertisement feature", "https://example.com/a", now, ""),
		candidate("AI research update", "https://example.com/b", now, ""),
	}
	got := Apply(items, source, now, 24*time.Hour)
	if len(got) != 1 || got[0].URL != "https://example.com/b" {
		t.Fatalf("exclude keyword must win: got %+v", got)
	}
}

func TestApplyNoKeywordsKeepsEverything(t *testing.T) {
	t.Parallel()
	now := time.Now()
	items := []model.CandidateItem{
		candidate("anything", "https://example.com/a", now, ""),
		candidate("goes", "https://example.com/b", now, ""),
	}
	got := Apply(items, model.SourceConfig{Name: "open"}, now, 24*time.Hour)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
}

func TestApplyFreshnessWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	items := []model.CandidateItem{
		candidate("fresh", "https://example.com/a", now.Add(-23*time.Hour), ""),
		candidate("stale", "https://example.com/b", now.Add(-25*time.Hour), ""),
		candidate("future", "https://example.com/c", now.Add(2*time.Hour), ""),
		candidate("undated", "https://example.com/d", time.Time{}, ""),
	}
	got := Apply(items, model.SourceConfig{Name: "s"}, now, 24*time.Hour)
	if len(got) != 2 {
		t.Fatalf("expected fresh + undated, got %d items", len(got))
	}
	if got[0].Title != "fresh" || got[1].Title != "undated" {
		t.Fatalf("unexpected survivors: %q, %q", got[0].Title, got[1].Title)
	}
}

func TestApplyDeduplicatesEarliestWins(t *testing.T) {
	t.Parallel()
	now := time.Now()
	items := []model.CandidateItem{
		candidate("Same Story", "https://example.com/story?utm_source=rss", now.Add(-2*time.Hour), "first"),
		candidate("same story", "https://example.com/story", now.Add(-time.Hour), "second"),
	}
	got := Apply(items, model.SourceConfig{Name: "s"}, now, 24*time.Hour)
	if len(got) != 1 {
		t.Fatalf("expected 1 item after dedup, got %d", len(got))
	}
	if got[0].RawExcerpt != "first" {
		t.Fatalf("earliest-seen item must win, got %q", got[0].RawExcerpt)
	}
}

func TestFingerprintIgnoresQueryAndCase(t *testing.T) {
	t.Parallel()
	a := Fingerprint("Big News", "https://Example.com/news/1?utm_source=feed&ref=x")
	b := Fingerprint("big news", "https://example.com/news/1")
	if a != b {
		t.Fatalf("fingerprints differ: %s vs %s", a, b)
	}
	c := Fingerprint("big news", "https://example.com/news/2")
	if a == c {
		t.Fatal("different URLs must not collide")
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"https://Example.com/a/?utm_source=x#frag", "https://example.com/a"},
		{"https://example.com/a?id=42", "https://example.com/a"},
		{"https://example.com/a", "https://example.com/a"},
	}
	for _, tc := range cases {
		if got := CanonicalURL(tc.in); got != tc.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeURLKeepsMeaningfulQuery(t *testing.T) {
	t.Parallel()
	a := NormalizeURL("https://example.com/download.php?id=42&utm_medium=email")
	b := NormalizeURL("https://example.com/download.php?id=42")
	if a != b {
		t.Fatalf("tracking params must be stripped: %s vs %s", a, b)
	}
	c := NormalizeURL("https://example.com/download.php?id=43")
	if a == c {
		t.Fatal("meaningful query params must stay distinct")
	}
	// 参数顺序不影响结果
	d := NormalizeURL("https://example.com/f?b=2&a=1")
	e := NormalizeURL("https://example.com/f?a=1&b=2")
	if d != e {
		t.Fatalf("query order must not matter: %s vs %s", d, e)
	}
}
