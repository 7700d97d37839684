// Package processor turns filtered items plus their attachments into stored
// documents: body extraction, length policy, output serialization and the
// idempotent store write.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"news-collector/internal/news_collector/extract"
	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/store"
)

var reWhitespace = regexp.MustCompile(`\s+`)

// 块级标签闭合处补空格，避免正文抽取后词黏连
var blockTags = []string{"div", "p", "br", "li", "td", "tr", "h1", "h2", "h3", "h4", "h5", "h6"}

// Processor persists one filtered item per call. It holds no per-item state
// and is safe for concurrent use across sources.
type Processor struct {
	store      store.ContentStore
	extractors *extract.Registry
	log        *zap.Logger
}

func New(s store.ContentStore, registry *extract.Registry, log *zap.Logger) *Processor {
	if registry == nil {
		registry = extract.NewRegistry()
	}
	return &Processor{store: s, extractors: registry, log: log}
}

// Process extracts the body from the item page, serializes to the configured
// format, persists attachment blobs and upserts the document by fingerprint.
// A returned error aborts this item only.
func (p *Processor) Process(ctx context.Context, item model.FilteredItem, pageHTML string, attachments []model.Attachment, cfg model.ProcessorConfig) (model.ProcessedNews, error) {
	body, bodyHTML := p.extractBody(item, pageHTML)
	summary := normalizeText(item.RawExcerpt)

	for i := range attachments {
		if attachments[i].Status != model.AttachmentDownloaded {
			continue
		}
		ref, err := p.store.PutBlob(ctx, cfg.KBID, attachments[i])
		if err != nil {
			return model.ProcessedNews{}, p.processingError(item.Fingerprint, err)
		}
		attachments[i].StorageRef = ref
		if p.extractors.Supports(attachments[i].Type) {
			excerpt, xerr := p.extractors.Extract(ctx, attachments[i].Type, attachments[i].Bytes, model.DefaultMaxAttachSummaryChars)
			if xerr != nil {
				p.log.Debug("attachment text extraction skipped",
					zap.String("filename", attachments[i].Filename),
					zap.Error(xerr))
			} else {
				attachments[i].TextExcerpt = excerpt
			}
		}
		attachments[i].Bytes = nil // 原始字节已落库，不随元数据重复保存
	}

	publishedAt := item.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	news := model.ProcessedNews{
		Fingerprint: item.Fingerprint,
		SourceName:  item.SourceName,
		Title:       item.Title,
		Summary:     truncate(summary, cfg.MaxContentLength),
		Format:      cfg.Format,
		URL:         item.URL,
		PublishedAt: publishedAt,
		Attachments: attachments,
		StoredAt:    time.Now(),
	}
	rendered, err := render(news, body, bodyHTML, cfg)
	if err != nil {
		return model.ProcessedNews{}, &model.ProcessingError{
			Fingerprint: item.Fingerprint,
			Kind:        model.ProcStoreUnreachable,
			Err:         err,
		}
	}
	news.Body = rendered

	ref, err := p.store.PutNews(ctx, cfg.KBID, news)
	if err != nil {
		return model.ProcessedNews{}, p.processingError(item.Fingerprint, err)
	}
	news.KBRef = ref
	return news, nil
}

// extractBody runs readability over the item page and flattens the article
// HTML to normalized text. When extraction yields nothing the feed excerpt
// is the fallback.
func (p *Processor) extractBody(item model.FilteredItem, pageHTML string) (text, html string) {
	if strings.TrimSpace(pageHTML) == "" {
		return normalizeText(item.RawExcerpt), ""
	}
	pageURL, err := url.Parse(item.URL)
	if err != nil {
		return normalizeText(item.RawExcerpt), ""
	}
	article, err := readability.FromReader(strings.NewReader(pageHTML), pageURL)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		p.log.Debug("readability extraction fell back to excerpt",
			zap.String("url", item.URL))
		return normalizeText(item.RawExcerpt), ""
	}

	processed := addSpacesBeforeParsing(article.Content)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(processed))
	if err != nil {
		return normalizeText(item.RawExcerpt), ""
	}
	text = normalizeText(doc.Text())
	if text == "" {
		return normalizeText(item.RawExcerpt), ""
	}
	return text, article.Content
}

func (p *Processor) processingError(fingerprint string, err error) error {
	kind := model.ProcStoreUnreachable
	switch {
	case errors.Is(err, store.ErrInvalidKB):
		kind = model.ProcInvalidKBID
	case errors.Is(err, store.ErrQuotaExceeded):
		kind = model.ProcQuotaExceeded
	}
	return &model.ProcessingError{Fingerprint: fingerprint, Kind: kind, Err: err}
}

// render serializes the document into the configured output format. The body
// is truncated after format conversion so the cut applies to what is stored.
func render(news model.ProcessedNews, bodyText, bodyHTML string, cfg model.ProcessorConfig) (string, error) {
	switch cfg.Format {
	case model.FormatMarkdown:
		body := bodyText
		if bodyHTML != "" {
			if md, err := htmltomarkdown.ConvertString(bodyHTML); err == nil {
				body = strings.TrimSpace(md)
			}
		}
		return renderMarkdown(news, truncate(body, cfg.MaxContentLength)), nil
	case model.FormatJSON:
		return renderJSON(news, truncate(bodyText, cfg.MaxContentLength))
	case model.FormatText:
		return renderText(news, truncate(bodyText, cfg.MaxContentLength)), nil
	default:
		return "", fmt.Errorf("unknown output format %q", cfg.Format)
	}
}

func renderMarkdown(news model.ProcessedNews, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", news.Title)
	fmt.Fprintf(&b, "**%s** | %s | [原文链接](%s)\n\n",
		news.SourceName, news.PublishedAt.Format("2006-01-02 15:04"), news.URL)
	if news.Summary != "" {
		fmt.Fprintf(&b, "> %s\n\n", news.Summary)
	}
	if body != "" {
		b.WriteString(body)
		b.WriteString("\n")
	}
	if len(news.Attachments) > 0 {
		b.WriteString("\n## 附件\n\n")
		for i, att := range news.Attachments {
			fmt.Fprintf(&b, "%d. %s (%d bytes, %s)\n", i+1, att.Filename, att.SizeBytes, att.Status)
		}
	}
	return b.String()
}

type jsonDocument struct {
	Title       string             `json:"title"`
	Source      string             `json:"source"`
	URL         string             `json:"url"`
	PublishedAt time.Time          `json:"published_at"`
	Summary     string             `json:"summary,omitempty"`
	Body        string             `json:"body,omitempty"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

func renderJSON(news model.ProcessedNews, body string) (string, error) {
	raw, err := json.MarshalIndent(jsonDocument{
		Title:       news.Title,
		Source:      news.SourceName,
		URL:         news.URL,
		PublishedAt: news.PublishedAt,
		Summary:     news.Summary,
		Body:        body,
		Attachments: news.Attachments,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func renderText(news model.ProcessedNews, body string) string {
	var b strings.Builder
	b.WriteString(news.Title + "\n")
	fmt.Fprintf(&b, "%s | %s | %s\n\n",
		news.SourceName, news.PublishedAt.Format("2006-01-02 15:04"), news.URL)
	if news.Summary != "" {
		b.WriteString(news.Summary + "\n\n")
	}
	if body != "" {
		b.WriteString(body + "\n")
	}
	if len(news.Attachments) > 0 {
		b.WriteString("\n附件:\n")
		for i, att := range news.Attachments {
			fmt.Fprintf(&b, "%d. %s (%d bytes, %s)\n", i+1, att.Filename, att.SizeBytes, att.Status)
		}
	}
	return b.String()
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}

func normalizeText(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

func addSpacesBeforeParsing(html string) string {
	result := html
	for _, tag := range blockTags {
		result = regexp.MustCompile(`<`+tag+`[^>]*>`).ReplaceAllString(result, " <"+tag+">")
		result = regexp.MustCompile(`</`+tag+`>`).ReplaceAllString(result, "</"+tag+"> ")
	}
	return result
}
