// Package report builds scheduled briefs from stored news. Section content
// is a pure function of the window's documents: same input, same brief.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/store"
)

const maxKeyEvents = 10
const maxHotTopics = 10

// Generator produces one Brief per invocation from the content store.
type Generator struct {
	store store.ContentStore
	log   *zap.Logger
}

func New(s store.ContentStore, log *zap.Logger) *Generator {
	return &Generator{store: s, log: log}
}

// Generate queries [start, end) and assembles the requested sections. Every
// requested section coming up empty aborts the brief with a no_content error;
// nothing half-built is ever returned.
func (g *Generator) Generate(ctx context.Context, cfg model.ReportConfig, start, end time.Time) (*model.Brief, error) {
	items, err := g.store.QueryWindow(ctx, cfg.KBIDs, start, end)
	if err != nil {
		return nil, &model.GenerationError{Kind: model.GenKBUnreachable, Err: err}
	}

	brief := &model.Brief{
		Title:       briefTitle(cfg, start),
		Template:    cfg.Template,
		Language:    cfg.Language,
		WindowStart: start,
		WindowEnd:   end,
		NewsCount:   len(items),
		Requested:   append([]string(nil), cfg.Sections...),
		GeneratedAt: time.Now(),
	}

	empty := true
	for _, section := range cfg.Sections {
		switch section {
		case model.SectionSummary:
			brief.Sections.Summary = buildSummary(items, cfg.Language)
			if brief.Sections.Summary != "" {
				empty = false
			}
		case model.SectionKeyEvents:
			brief.Sections.KeyEvents = buildKeyEvents(items, cfg)
			if len(brief.Sections.KeyEvents) > 0 {
				empty = false
			}
		case model.SectionTrends:
			brief.Sections.Trends = buildTrends(items)
			if brief.Sections.Trends != nil {
				empty = false
			}
		case model.SectionAttachments:
			brief.Sections.Attachments = buildAttachments(items)
			if brief.Sections.Attachments != nil {
				empty = false
			}
		}
	}
	if empty {
		return nil, &model.GenerationError{
			Kind: model.GenNoContent,
			Err:  fmt.Errorf("no content between %s and %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		}
	}

	content, err := renderBrief(brief, cfg)
	if err != nil {
		return nil, &model.GenerationError{Kind: model.GenNoContent, Err: err}
	}
	brief.Content = content

	g.log.Info("brief generated",
		zap.String("template", cfg.Template),
		zap.Int("news_count", brief.NewsCount),
		zap.Time("window_start", start),
		zap.Time("window_end", end))
	return brief, nil
}

func briefTitle(cfg model.ReportConfig, start time.Time) string {
	day := start.Format("2006-01-02")
	l := lang(cfg.Language)
	switch cfg.Template {
	case "executive_summary":
		return l.titleExecutive + " " + day
	case "industry_report":
		return l.titleIndustry + " " + day
	default:
		return l.titleDaily + " " + day
	}
}

func buildSummary(items []model.ProcessedNews, language string) string {
	if len(items) == 0 {
		return ""
	}
	sources := make(map[string]bool)
	attachments := 0
	for _, n := range items {
		sources[n.SourceName] = true
		for _, a := range n.Attachments {
			if a.Status == model.AttachmentDownloaded {
				attachments++
			}
		}
	}
	l := lang(language)
	return fmt.Sprintf(l.summaryLine, len(items), len(sources), attachments)
}

// buildKeyEvents keeps the newest items, ties broken by fingerprint so the
// outcome never depends on map iteration.
func buildKeyEvents(items []model.ProcessedNews, cfg model.ReportConfig) []model.KeyEvent {
	sorted := append([]model.ProcessedNews(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PublishedAt.Equal(sorted[j].PublishedAt) {
			return sorted[i].Fingerprint < sorted[j].Fingerprint
		}
		return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
	})
	if len(sorted) > maxKeyEvents {
		sorted = sorted[:maxKeyEvents]
	}

	events := make([]model.KeyEvent, 0, len(sorted))
	for _, n := range sorted {
		ev := model.KeyEvent{
			Title:   n.Title,
			Source:  n.SourceName,
			Time:    n.PublishedAt.Format("2006-01-02 15:04"),
			Summary: n.Summary,
			Link:    n.URL,
		}
		downloaded := downloadedAttachments(n)
		if len(downloaded) > 0 {
			ev.HasAttachments = true
			if cfg.AttachmentSummary {
				ev.AttachmentSummary = summarizeAttachments(downloaded, cfg)
			}
		}
		events = append(events, ev)
	}
	return events
}

func buildTrends(items []model.ProcessedNews) *model.TrendStats {
	if len(items) == 0 {
		return nil
	}
	stats := &model.TrendStats{
		HotTopics:          hotTopics(items),
		SourceDistribution: make(map[string]int),
	}
	withAttachments := 0
	for _, n := range items {
		stats.SourceDistribution[n.SourceName]++
		downloaded := downloadedAttachments(n)
		stats.TotalAttachments += len(downloaded)
		if len(downloaded) > 0 {
			withAttachments++
		}
	}
	stats.AttachmentRatio = float64(withAttachments) / float64(len(items))
	return stats
}

func buildAttachments(items []model.ProcessedNews) *model.AttachmentsSection {
	section := &model.AttachmentsSection{
		TypeDistribution: make(map[string]model.AttachmentTypeStat),
	}
	for _, n := range items {
		downloaded := downloadedAttachments(n)
		if len(downloaded) == 0 {
			continue
		}
		section.NewsTitles = append(section.NewsTitles, n.Title)
		for _, a := range downloaded {
			section.TotalAttachments++
			section.TotalSizeBytes += a.SizeBytes
			stat := section.TypeDistribution[a.Type]
			stat.Count++
			stat.SizeBytes += a.SizeBytes
			section.TypeDistribution[a.Type] = stat
		}
	}
	if section.TotalAttachments == 0 {
		return nil
	}
	sort.Strings(section.NewsTitles)
	return section
}

// summarizeAttachments groups one item's downloaded attachments by type:
// "2 pdf (3.4 MB); 1 docx (0.1 MB)". A file the extractor could not read
// still counts; only its excerpt is missing.
func summarizeAttachments(downloaded []model.Attachment, cfg model.ReportConfig) string {
	byType := make(map[string]model.AttachmentTypeStat)
	for _, a := range downloaded {
		stat := byType[a.Type]
		stat.Count++
		stat.SizeBytes += a.SizeBytes
		byType[a.Type] = stat
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		stat := byType[t]
		parts = append(parts, fmt.Sprintf("%d %s (%.1f MB)",
			stat.Count, t, float64(stat.SizeBytes)/(1024*1024)))
	}
	summary := strings.Join(parts, "; ")
	if cfg.MaxAttachSummaryLength > 0 {
		if runes := []rune(summary); len(runes) > cfg.MaxAttachSummaryLength {
			summary = string(runes[:cfg.MaxAttachSummaryLength])
		}
	}
	return summary
}

func downloadedAttachments(n model.ProcessedNews) []model.Attachment {
	var out []model.Attachment
	for _, a := range n.Attachments {
		if a.Status == model.AttachmentDownloaded {
			out = append(out, a)
		}
	}
	return out
}

// 标题分词时跳过的常见虚词
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "with": true, "at": true, "is": true,
	"are": true, "from": true, "by": true, "as": true, "its": true, "new": true,
}

// hotTopics counts title tokens; ranking is by frequency then lexicographic
// so repeated runs over the same window agree.
func hotTopics(items []model.ProcessedNews) []string {
	counts := make(map[string]int)
	for _, n := range items {
		for _, tok := range tokenize(n.Title) {
			counts[tok]++
		}
	}
	type freq struct {
		word string
		n    int
	}
	ranked := make([]freq, 0, len(counts))
	for w, n := range counts {
		if n < 2 {
			continue // 只出现一次算不上热点
		}
		ranked = append(ranked, freq{w, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].n == ranked[j].n {
			return ranked[i].word < ranked[j].word
		}
		return ranked[i].n > ranked[j].n
	})
	if len(ranked) > maxHotTopics {
		ranked = ranked[:maxHotTopics]
	}
	topics := make([]string, 0, len(ranked))
	for _, f := range ranked {
		topics = append(topics, f.word)
	}
	return topics
}

// tokenize splits a title into lowercase word tokens; CJK runs are emitted as
// bigrams since there are no word boundaries to split on.
func tokenize(title string) []string {
	var tokens []string
	var latin []rune
	var cjk []rune

	flushLatin := func() {
		if len(latin) >= 2 {
			word := strings.ToLower(string(latin))
			if !stopwords[word] {
				tokens = append(tokens, word)
			}
		}
		latin = latin[:0]
	}
	flushCJK := func() {
		for i := 0; i+1 < len(cjk); i++ {
			tokens = append(tokens, string(cjk[i:i+2]))
		}
		cjk = cjk[:0]
	}

	for _, r := range title {
		switch {
		case unicode.Is(unicode.Han, r):
			flushLatin()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			latin = append(latin, r)
		default:
			flushLatin()
			flushCJK()
		}
	}
	flushLatin()
	flushCJK()
	return tokens
}
