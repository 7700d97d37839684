package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/store"
)

var windowStart = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
var windowEnd = windowStart.Add(24 * time.Hour)

func reportCfg() model.ReportConfig {
	cfg := model.DefaultTenantConfig("t1").Report
	cfg.KBIDs = []string{"kb-1"}
	return cfg
}

func seedNews(t *testing.T, mem *store.Memory, docs ...model.ProcessedNews) {
	t.Helper()
	for _, d := range docs {
		if _, err := mem.PutNews(context.Background(), "kb-1", d); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func doc(fp, title, source string, offset time.Duration, attachments ...model.Attachment) model.ProcessedNews {
	return model.ProcessedNews{
		Fingerprint: fp,
		SourceName:  source,
		Title:       title,
		Summary:     "summary of " + title,
		URL:         "https://example.com/" + fp,
		PublishedAt: windowStart.Add(offset),
		StoredAt:    windowStart.Add(offset),
		Attachments: attachments,
	}
}

func pdfAttachment(size int64) model.Attachment {
	return model.Attachment{
		Filename:  "report.pdf",
		Type:      "pdf",
		SizeBytes: size,
		Status:    model.AttachmentDownloaded,
	}
}

func TestGenerateEmptyWindowIsNoContent(t *testing.T) {
	t.Parallel()
	g := New(store.NewMemory(), zap.NewNop())
	_, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)

	var gerr *model.GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if gerr.Kind != model.GenNoContent {
		t.Fatalf("kind = %s", gerr.Kind)
	}
}

func TestGenerateWindowUsesStoredAt(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	// 发布时间早于窗口，但入库时间在窗口内：补爬到的旧新闻也属于当期
	late := doc("fp-late", "Backfilled story", "tech-daily", 2*time.Hour)
	late.PublishedAt = windowStart.Add(-72 * time.Hour)
	// 发布时间在窗口内，入库时间在窗口之前：不属于当期
	stale := doc("fp-stale", "Previously stored story", "tech-daily", 4*time.Hour)
	stale.StoredAt = windowStart.Add(-time.Hour)
	seedNews(t, mem, late, stale)

	g := New(mem, zap.NewNop())
	brief, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if brief.NewsCount != 1 {
		t.Fatalf("news count = %d, want 1", brief.NewsCount)
	}
	if brief.Sections.KeyEvents[0].Title != "Backfilled story" {
		t.Errorf("got %q", brief.Sections.KeyEvents[0].Title)
	}
}

func TestGenerateStoreErrorIsKBUnreachable(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	mem.FailWith = store.ErrUnavailable
	g := New(mem, zap.NewNop())
	_, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)

	var gerr *model.GenerationError
	if !errors.As(err, &gerr) || gerr.Kind != model.GenKBUnreachable {
		t.Fatalf("expected kb_unreachable, got %v", err)
	}
}

func TestGenerateBuildsAllSections(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem,
		doc("fp1", "AI chip launch announced", "tech-daily", 2*time.Hour, pdfAttachment(2*1024*1024)),
		doc("fp2", "AI chip market grows", "tech-daily", 4*time.Hour),
		doc("fp3", "Policy update on data centers", "gov-news", 6*time.Hour),
	)
	g := New(mem, zap.NewNop())
	brief, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if brief.NewsCount != 3 {
		t.Errorf("news count = %d", brief.NewsCount)
	}
	if brief.Sections.Summary == "" {
		t.Error("summary section empty")
	}
	if len(brief.Sections.KeyEvents) != 3 {
		t.Errorf("key events = %d", len(brief.Sections.KeyEvents))
	}
	// 关键事件按时间倒序
	if brief.Sections.KeyEvents[0].Title != "Policy update on data centers" {
		t.Errorf("newest first: got %q", brief.Sections.KeyEvents[0].Title)
	}
	if !brief.Sections.KeyEvents[2].HasAttachments {
		t.Error("attachment flag lost on fp1")
	}
	trends := brief.Sections.Trends
	if trends == nil {
		t.Fatal("trends section missing")
	}
	if trends.SourceDistribution["tech-daily"] != 2 || trends.SourceDistribution["gov-news"] != 1 {
		t.Errorf("source distribution = %v", trends.SourceDistribution)
	}
	if trends.TotalAttachments != 1 {
		t.Errorf("total attachments = %d", trends.TotalAttachments)
	}
	atts := brief.Sections.Attachments
	if atts == nil || atts.TypeDistribution["pdf"].Count != 1 {
		t.Errorf("attachments section = %+v", atts)
	}
	if brief.Content == "" {
		t.Error("rendered content empty")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem,
		doc("fp1", "chip news one", "a-wire", time.Hour),
		doc("fp2", "chip news two", "b-wire", time.Hour), // 同一时刻，靠 fingerprint 破平
		doc("fp3", "chip news three", "a-wire", 2*time.Hour),
	)
	g := New(mem, zap.NewNop())

	first, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)
		if err != nil {
			t.Fatalf("Generate #%d: %v", i, err)
		}
		if again.Sections.Summary != first.Sections.Summary {
			t.Fatal("summary not deterministic")
		}
		for j := range first.Sections.KeyEvents {
			if again.Sections.KeyEvents[j].Title != first.Sections.KeyEvents[j].Title {
				t.Fatalf("key event order changed on run %d", i)
			}
		}
		if strings.Join(again.Sections.Trends.HotTopics, ",") != strings.Join(first.Sections.Trends.HotTopics, ",") {
			t.Fatal("hot topics not deterministic")
		}
	}
}

func TestGenerateWindowBoundaries(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem,
		doc("fp-in", "inside the window story", "wire", 0),               // == start，含
		doc("fp-out", "outside the window story", "wire", 24*time.Hour),  // == end，不含
		doc("fp-old", "before the window story", "wire", -1*time.Minute), // < start
	)
	g := New(mem, zap.NewNop())
	brief, err := g.Generate(context.Background(), reportCfg(), windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if brief.NewsCount != 1 {
		t.Fatalf("window [start,end): expected 1 item, got %d", brief.NewsCount)
	}
}

func TestGenerateEmptySectionMarker(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem, doc("fp1", "plain story without files", "wire", time.Hour))
	cfg := reportCfg()
	cfg.Language = "en-US"

	g := New(mem, zap.NewNop())
	brief, err := g.Generate(context.Background(), cfg, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if brief.Sections.Attachments != nil {
		t.Fatal("attachments section should be empty")
	}
	if !strings.Contains(brief.Content, "(no content this period)") {
		t.Errorf("empty requested section needs an explicit marker:\n%s", brief.Content)
	}
}

func TestGenerateLocalizedRendering(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem, doc("fp1", "some story headline here", "wire", time.Hour))
	g := New(mem, zap.NewNop())

	zh := reportCfg()
	briefZH, err := g.Generate(context.Background(), zh, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("zh: %v", err)
	}
	if !strings.Contains(briefZH.Content, "摘要") {
		t.Errorf("zh-CN headings missing:\n%s", briefZH.Content)
	}

	en := reportCfg()
	en.Language = "en-US"
	briefEN, err := g.Generate(context.Background(), en, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("en: %v", err)
	}
	if !strings.Contains(briefEN.Content, "Summary") {
		t.Errorf("en-US headings missing:\n%s", briefEN.Content)
	}
}

func TestGenerateJSONFormat(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory()
	seedNews(t, mem, doc("fp1", "structured output story", "wire", time.Hour))
	cfg := reportCfg()
	cfg.Format = model.FormatJSON

	g := New(mem, zap.NewNop())
	brief, err := g.Generate(context.Background(), cfg, windowStart, windowEnd)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(brief.Content, `"news_count": 1`) {
		t.Errorf("json content missing count:\n%s", brief.Content)
	}
}

func TestAttachmentSummaryTruncation(t *testing.T) {
	t.Parallel()
	cfg := reportCfg()
	cfg.MaxAttachSummaryLength = 10
	atts := []model.Attachment{pdfAttachment(1024), {Filename: "b.docx", Type: "docx", SizeBytes: 2048, Status: model.AttachmentDownloaded}}
	got := summarizeAttachments(atts, cfg)
	if len([]rune(got)) > 10 {
		t.Fatalf("summary exceeds cap: %q", got)
	}
}

func TestHotTopicsRequireRepetition(t *testing.T) {
	t.Parallel()
	items := []model.ProcessedNews{
		{Title: "quantum breakthrough in computing"},
		{Title: "quantum computing funding grows"},
		{Title: "weather outlook sunny"},
	}
	topics := hotTopics(items)
	joined := strings.Join(topics, ",")
	if !strings.Contains(joined, "quantum") || !strings.Contains(joined, "computing") {
		t.Errorf("repeated tokens must rank: %v", topics)
	}
	if strings.Contains(joined, "weather") {
		t.Errorf("single-occurrence token must not rank: %v", topics)
	}
}
