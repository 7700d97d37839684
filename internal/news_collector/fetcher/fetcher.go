// Package fetcher retrieves raw candidate items from configured news
// sources, RSS feeds and plain HTML pages alike.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"news-collector/internal/news_collector/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const maxPageBytes = 4 * 1024 * 1024

// Fetcher pulls candidate items over the network. It is safe for concurrent
// use; every blocking call takes a context and honors its cancellation.
type Fetcher struct {
	client     *http.Client
	parser     *gofeed.Parser
	robots     *robotsCache
	log        *zap.Logger
	userAgent  string
	maxRetries int
	backoff    time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBackoff overrides the first retry delay. Tests shrink it.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) { f.backoff = d }
}

// WithRetries overrides the attempt budget per request.
func WithRetries(n int) Option {
	return func(f *Fetcher) { f.maxRetries = n }
}

// WithUserAgent overrides the User-Agent header and the robots.txt group.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// New builds a Fetcher around the given HTTP client; a nil client gets a
// default with the standard 30s timeout.
func New(client *http.Client, log *zap.Logger, opts ...Option) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: time.Duration(model.DefaultFetchTimeoutSec) * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fetcher{
		client:     client,
		parser:     gofeed.NewParser(),
		log:        log,
		userAgent:  defaultUserAgent,
		maxRetries: 3,
		backoff:    15 * time.Second,
	}
	for _, o := range opts {
		o(f)
	}
	f.robots = newRobotsCache(client, f.userAgent, log)
	return f
}

// Fetch retrieves up to source.MaxItems candidate items, preserving feed or
// page order. Network failures are retried with exponential backoff before a
// FetchError is surfaced; a failed source never aborts its sibling sources.
func (f *Fetcher) Fetch(ctx context.Context, source model.SourceConfig) ([]model.CandidateItem, error) {
	var (
		items []model.CandidateItem
		err   error
	)
	switch source.Kind {
	case model.SourceKindRSS:
		items, err = f.withRetry(ctx, source, f.fetchRSS)
	case model.SourceKindHTML:
		items, err = f.withRetry(ctx, source, f.fetchHTML)
	default:
		return nil, &model.FetchError{
			Source: source.Name,
			Kind:   model.FetchMalformed,
			Err:    fmt.Errorf("unknown source kind %q", source.Kind),
		}
	}
	if err != nil {
		return nil, err
	}
	if source.MaxItems > 0 && len(items) > source.MaxItems {
		items = items[:source.MaxItems]
	}
	f.log.Info("source fetched",
		zap.String("source", source.Name),
		zap.String("kind", string(source.Kind)),
		zap.Int("items", len(items)),
	)
	return items, nil
}

// FetchPage retrieves one article page for downstream attachment scanning
// and body extraction. The page is fetched once per item per cycle and the
// decoded HTML shared by resolver and processor.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (string, error) {
	if !f.robots.allowed(ctx, pageURL) {
		return "", fmt.Errorf("disallowed by robots.txt: %s", pageURL)
	}
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return body, nil
}

type fetchFunc func(ctx context.Context, source model.SourceConfig) ([]model.CandidateItem, error)

// withRetry 失败按 backoff*2^(n-1) 递增重试；malformed 不重试
func (f *Fetcher) withRetry(ctx context.Context, source model.SourceConfig, fn fetchFunc) ([]model.CandidateItem, error) {
	var lastErr error
	delay := f.backoff
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		items, err := fn(ctx, source)
		if err == nil {
			return items, nil
		}
		lastErr = err
		kind := classify(err)
		if kind == model.FetchMalformed {
			break
		}
		if attempt == f.maxRetries {
			break
		}
		f.log.Warn("fetch attempt failed, retrying",
			zap.String("source", source.Name),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &model.FetchError{Source: source.Name, Kind: model.FetchTimeout, Err: ctx.Err()}
		case <-timer.C:
		}
		delay *= 2
	}
	return nil, &model.FetchError{Source: source.Name, Kind: classify(lastErr), Err: lastErr}
}

func classify(err error) model.FetchErrorKind {
	if err == nil {
		return model.FetchUnreachable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.FetchTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.FetchTimeout
	}
	var pe *parseError
	if errors.As(err, &pe) {
		return model.FetchMalformed
	}
	return model.FetchUnreachable
}

// parseError 标记响应体解析失败，这类错误重试也不会好
type parseError struct{ err error }

func (e *parseError) Error() string { return "parse: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// get issues one GET and returns the charset-decoded body.
func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.log.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, rawURL)
	}

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		reader = io.LimitReader(resp.Body, maxPageBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
