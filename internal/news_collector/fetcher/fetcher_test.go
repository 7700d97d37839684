package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"news-collector/internal/news_collector/model"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Tech Feed</title>
<item>
  <title>First story</title>
  <link>https://example.com/news/1</link>
  <description>summary one</description>
  <pubDate>Tue, 10 Mar 2026 08:00:00 GMT</pubDate>
</item>
<item>
  <title>Second story</title>
  <link>https://example.com/news/2</link>
  <description>summary two</description>
  <pubDate>Tue, 10 Mar 2026 09:00:00 GMT</pubDate>
</item>
<item>
  <title>Third story</title>
  <link>https://example.com/news/3</link>
  <description>summary three</description>
</item>
</channel></rss>`

const htmlFixture = `<!DOCTYPE html>
<html><body>
<div class="news-list">
  <li class="news-item">
    <h3 class="title"><a href="/articles/chip-launch">New chip platform launched today</a></h3>
    <p class="summary">A very short recap.</p>
    <time datetime="2026-03-10T08:30:00Z">March 10</time>
  </li>
  <li class="news-item">
    <h3 class="title"><a href="https://other.example.com/articles/ai">AI lab publishes new results</a></h3>
  </li>
</div>
</body></html>`

func testFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	base := []Option{WithBackoff(time.Millisecond)}
	return New(&http.Client{Timeout: 5 * time.Second}, zap.NewNop(), append(base, opts...)...)
}

func TestFetchRSS(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssFixture)
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "tech", Kind: model.SourceKindRSS, FeedURL: srv.URL, MaxItems: 10}
	items, err := f.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Title != "First story" || items[0].URL != "https://example.com/news/1" {
		t.Errorf("unexpected first item: %+v", items[0])
	}
	if items[0].PublishedAt.IsZero() {
		t.Error("pubDate must be parsed")
	}
	if !items[2].PublishedAt.IsZero() {
		t.Error("item without pubDate must keep zero time")
	}
	if items[1].RawExcerpt != "summary two" {
		t.Errorf("excerpt = %q", items[1].RawExcerpt)
	}
}

func TestFetchRSSMaxItemsCap(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, rssFixture)
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "tech", Kind: model.SourceKindRSS, FeedURL: srv.URL, MaxItems: 2}
	items, err := f.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("cap at max_items: expected 2, got %d", len(items))
	}
	// 截断保留源内顺序的前两条
	if items[0].Title != "First story" || items[1].Title != "Second story" {
		t.Errorf("cap must keep feed order: %q, %q", items[0].Title, items[1].Title)
	}
}

func TestFetchMalformedFeedNoRetry(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, "this is not a feed at all")
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "bad", Kind: model.SourceKindRSS, FeedURL: srv.URL}
	_, err := f.Fetch(context.Background(), source)

	var ferr *model.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if ferr.Kind != model.FetchMalformed {
		t.Fatalf("expected malformed, got %s", ferr.Kind)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("malformed responses must not be retried, got %d hits", got)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, rssFixture)
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "flaky", Kind: model.SourceKindRSS, FeedURL: srv.URL}
	items, err := f.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch after retries: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected items after recovery")
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchUnreachableAfterRetries(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "down", Kind: model.SourceKindRSS, FeedURL: srv.URL}
	_, err := f.Fetch(context.Background(), source)

	var ferr *model.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if ferr.Kind != model.FetchUnreachable {
		t.Fatalf("expected unreachable, got %s", ferr.Kind)
	}
	if ferr.Source != "down" {
		t.Fatalf("error must carry the source name, got %q", ferr.Source)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := testFetcher(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	source := model.SourceConfig{Name: "slow", Kind: model.SourceKindRSS, FeedURL: srv.URL}
	_, err := f.Fetch(ctx, source)

	var ferr *model.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if ferr.Kind != model.FetchTimeout {
		t.Fatalf("expected timeout, got %s", ferr.Kind)
	}
}

func TestFetchHTML(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, htmlFixture)
	}))
	defer srv.Close()

	f := testFetcher(t)
	source := model.SourceConfig{Name: "portal", Kind: model.SourceKindHTML, EndpointURL: srv.URL, MaxItems: 10}
	items, err := f.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Title != "New chip platform launched today" {
		t.Errorf("title = %q", items[0].Title)
	}
	if items[0].URL != srv.URL+"/articles/chip-launch" {
		t.Errorf("relative link must resolve against the page: %q", items[0].URL)
	}
	if items[0].PublishedAt.IsZero() {
		t.Error("datetime attribute must be parsed")
	}
	if items[1].URL != "https://other.example.com/articles/ai" {
		t.Errorf("absolute link must pass through: %q", items[1].URL)
	}
}

func TestFetchPageRobotsDisallowed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		fmt.Fprint(w, "<html><body>secret</body></html>")
	}))
	defer srv.Close()

	f := testFetcher(t)
	if _, err := f.FetchPage(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Fatal("robots-disallowed page must not be fetched")
	}
	if _, err := f.FetchPage(context.Background(), srv.URL+"/public/page"); err != nil {
		t.Fatalf("allowed page: %v", err)
	}
}
