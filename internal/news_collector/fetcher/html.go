package fetcher

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"news-collector/internal/news_collector/model"
)

// 常见新闻列表选择器，命中第一个有结果的就停
var listSelectors = []string{
	"article",
	".news-item", ".article", ".post", ".entry",
	".news-list li", ".article-list li", ".post-list li",
}

var titleSelectors = []string{"h1", "h2", "h3", ".title", ".headline", "a"}
var summarySelectors = []string{".summary", ".excerpt", ".description", "p"}
var timeSelectors = []string{"time", ".time", ".date", ".published"}

func (f *Fetcher) fetchHTML(ctx context.Context, source model.SourceConfig) ([]model.CandidateItem, error) {
	if !f.robots.allowed(ctx, source.EndpointURL) {
		return nil, &parseError{err: errRobotsDisallowed}
	}
	body, err := f.get(ctx, source.EndpointURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &parseError{err: err}
	}
	base, err := url.Parse(source.EndpointURL)
	if err != nil {
		return nil, &parseError{err: err}
	}

	var items []model.CandidateItem
	for _, sel := range listSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if it, ok := extractItem(s, source, base); ok {
				items = append(items, it)
			}
		})
		if len(items) > 0 {
			break
		}
	}
	if len(items) == 0 {
		items = fallbackLinks(doc, source, base)
	}
	return items, nil
}

// extractItem pulls title/link/summary/time out of one list element.
func extractItem(s *goquery.Selection, source model.SourceConfig, base *url.URL) (model.CandidateItem, bool) {
	var title string
	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			title = t
			break
		}
	}
	if title == "" {
		title = strings.TrimSpace(s.Text())
		if len([]rune(title)) > 100 {
			title = string([]rune(title)[:100])
		}
	}
	// 标题太短的多半是栏目名
	if len([]rune(title)) <= 5 {
		return model.CandidateItem{}, false
	}

	link := ""
	if href, ok := s.Find("a").First().Attr("href"); ok {
		link = resolveHref(base, href)
	}
	if link == "" {
		if s.Is("a") {
			if href, ok := s.Attr("href"); ok {
				link = resolveHref(base, href)
			}
		}
	}
	if link == "" {
		return model.CandidateItem{}, false
	}

	var summary string
	for _, sel := range summarySelectors {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" && t != title {
			summary = t
			break
		}
	}

	var published time.Time
	for _, sel := range timeSelectors {
		node := s.Find(sel).First()
		raw := strings.TrimSpace(node.Text())
		if dt, ok := node.Attr("datetime"); ok && dt != "" {
			raw = dt
		}
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			published = t
			break
		}
	}

	return model.CandidateItem{
		SourceName:  source.Name,
		Title:       title,
		URL:         link,
		PublishedAt: published,
		RawExcerpt:  summary,
	}, true
}

// fallbackLinks 兜底：页面没有可识别的列表结构时收集全部像新闻的链接
func fallbackLinks(doc *goquery.Document, source model.SourceConfig, base *url.URL) []model.CandidateItem {
	var items []model.CandidateItem
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Text())
		href, _ := s.Attr("href")
		if len([]rune(title)) <= 10 {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(href, "#") {
			return
		}
		link := resolveHref(base, href)
		if link == "" {
			return
		}
		items = append(items, model.CandidateItem{
			SourceName: source.Name,
			Title:      title,
			URL:        link,
		})
	})
	return items
}

func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
