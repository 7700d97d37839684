package store

import (
	"context"
	"testing"
	"time"

	"news-collector/internal/news_collector/model"
)

func storedNews(fp string, storedAt, publishedAt time.Time) model.ProcessedNews {
	return model.ProcessedNews{
		Fingerprint: fp,
		Title:       "story " + fp,
		StoredAt:    storedAt,
		PublishedAt: publishedAt,
	}
}

func TestMemoryQueryWindowFiltersOnStoredAt(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	seeds := []model.ProcessedNews{
		storedNews("fp-in", start.Add(time.Hour), start.Add(-72*time.Hour)),
		storedNews("fp-before", start.Add(-time.Hour), start.Add(time.Hour)),
		storedNews("fp-at-end", end, start.Add(time.Hour)),
	}
	for _, n := range seeds {
		if _, err := mem.PutNews(context.Background(), "kb-1", n); err != nil {
			t.Fatalf("seed %s: %v", n.Fingerprint, err)
		}
	}

	got, err := mem.QueryWindow(context.Background(), []string{"kb-1"}, start, end)
	if err != nil {
		t.Fatalf("QueryWindow: %v", err)
	}
	if len(got) != 1 || got[0].Fingerprint != "fp-in" {
		t.Fatalf("got %d items, want only fp-in: %+v", len(got), got)
	}
}

func TestMemoryDeleteOlderThanUsesStoredAt(t *testing.T) {
	t.Parallel()
	mem := NewMemory()
	cutoff := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// 发布早但入库晚的文档不受保留期清理影响
	old := storedNews("fp-old", cutoff.Add(-time.Hour), cutoff.Add(time.Hour))
	kept := storedNews("fp-kept", cutoff.Add(time.Hour), cutoff.Add(-72*time.Hour))
	for _, n := range []model.ProcessedNews{old, kept} {
		if _, err := mem.PutNews(context.Background(), "kb-1", n); err != nil {
			t.Fatalf("seed %s: %v", n.Fingerprint, err)
		}
	}

	removed, err := mem.DeleteOlderThan(context.Background(), "kb-1", cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if mem.NewsCount("kb-1") != 1 {
		t.Fatalf("remaining = %d, want 1", mem.NewsCount("kb-1"))
	}
	if _, ok := mem.GetNews("kb-1", "fp-kept"); !ok {
		t.Error("late-stored document was cleaned up")
	}
}
