package fetcher

import (
	"context"
	"strings"
	"time"

	"news-collector/internal/news_collector/model"
)

func (f *Fetcher) fetchRSS(ctx context.Context, source model.SourceConfig) ([]model.CandidateItem, error) {
	body, err := f.get(ctx, source.FeedEndpoint())
	if err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseString(body)
	if err != nil {
		return nil, &parseError{err: err}
	}

	items := make([]model.CandidateItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it.Title == "" || it.Link == "" {
			continue
		}
		var published time.Time
		if it.PublishedParsed != nil {
			published = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			published = *it.UpdatedParsed
		}
		excerpt := firstNonEmpty(it.Description, it.Content)
		items = append(items, model.CandidateItem{
			SourceName:  source.Name,
			Title:       strings.TrimSpace(it.Title),
			URL:         strings.TrimSpace(it.Link),
			PublishedAt: published,
			RawExcerpt:  excerpt,
		})
	}
	return items, nil
}
