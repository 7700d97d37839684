package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

var errRobotsDisallowed = errors.New("disallowed by robots.txt")

// robotsCache caches the parsed robots.txt group per host. A host whose
// robots.txt cannot be fetched or parsed is treated as allow-all.
type robotsCache struct {
	client    *http.Client
	userAgent string
	log       *zap.Logger

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

func newRobotsCache(client *http.Client, userAgent string, log *zap.Logger) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		log:       log,
		groups:    make(map[string]*robotstxt.Group),
	}
}

func (r *robotsCache) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	g := r.group(ctx, u)
	if g == nil {
		return true
	}
	return g.Test(u.Path)
}

func (r *robotsCache) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host
	r.mu.Lock()
	g, ok := r.groups[key]
	r.mu.Unlock()
	if ok {
		return g
	}

	g = r.fetch(ctx, key)
	r.mu.Lock()
	r.groups[key] = g
	r.mu.Unlock()
	return g
}

func (r *robotsCache) fetch(ctx context.Context, origin string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/robots.txt", origin), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("robots.txt fetch failed, allowing all", zap.String("origin", origin), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		r.log.Debug("robots.txt parse failed, allowing all", zap.String("origin", origin), zap.Error(err))
		return nil
	}
	return data.FindGroup(r.userAgent)
}
