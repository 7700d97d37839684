// Package attachment discovers document attachments on article pages and
// downloads them under size, type and timeout policy.
package attachment

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"news-collector/internal/news_collector/filter"
	"news-collector/internal/news_collector/model"
)

// 单条新闻最多保留的附件候选数
const maxCandidatesPerItem = 20

// 链接文字里的附件特征词（中英混合，沿用线上词表）
var linkTextKeywords = []string{"pdf", "附件", "下载", "文档", "报告", "文件"}

// URL 里的附件特征词
var urlKeywords = []string{"pdf", "attachment", "download", "file"}

var knownExtensions = map[string]bool{
	"pdf": true, "doc": true, "docx": true,
	"ppt": true, "pptx": true, "xls": true, "xlsx": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Resolve scans the already-fetched page of one filtered item for attachment
// links. Classification applies a first-match-wins cascade: file extension,
// then link text keyword, then URL keyword. Candidates are deduplicated by
// normalized URL within the item; candidates whose type is outside the
// configured set come back as skipped_type records instead. No network I/O
// happens here.
func Resolve(item model.FilteredItem, pageHTML string, cfg model.ProcessorConfig) ([]model.AttachmentCandidate, []model.Attachment) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, nil
	}
	base, err := url.Parse(item.URL)
	if err != nil {
		return nil, nil
	}

	var (
		candidates []model.AttachmentCandidate
		skipped    []model.Attachment
		seen       = make(map[string]bool)
		ordinal    int
	)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if len(candidates) >= maxCandidatesPerItem {
			return
		}
		href, _ := s.Attr("href")
		linkText := strings.TrimSpace(s.Text())

		full := resolveLink(base, href)
		if full == "" {
			return
		}
		norm := filter.NormalizeURL(full)
		if seen[norm] {
			return
		}

		inferred, signal, ok := classify(full, linkText)
		if !ok {
			return
		}
		seen[norm] = true
		ordinal++

		cand := model.AttachmentCandidate{
			ItemFingerprint: item.Fingerprint,
			URL:             full,
			InferredType:    inferred,
			Signal:          signal,
			Filename:        extractFilename(full, linkText, item.Fingerprint, ordinal),
			LinkText:        linkText,
		}
		if !cfg.AllowsType(inferred) {
			skipped = append(skipped, model.Attachment{
				ItemFingerprint: item.Fingerprint,
				Filename:        cand.Filename,
				Type:            inferred,
				Status:          model.AttachmentSkipType,
				Error:           fmt.Sprintf("type %q not in attachment_types", inferred),
				SourceURL:       full,
			})
			return
		}
		candidates = append(candidates, cand)
	})

	return candidates, skipped
}

// classify 级联判定：扩展名 → 链接文字关键词 → URL 关键词 → 不是附件。
// 扩展名是最可靠的信号，放在第一位。
func classify(fullURL, linkText string) (string, model.AttachmentSignal, bool) {
	if ext := urlExtension(fullURL); ext != "" && knownExtensions[ext] {
		return model.FileTypeForExtension(ext), model.SignalExtension, true
	}

	textLower := strings.ToLower(linkText)
	for _, kw := range linkTextKeywords {
		if strings.Contains(textLower, kw) {
			return inferTypeFromText(textLower + " " + strings.ToLower(fullURL)), model.SignalLinkText, true
		}
	}

	urlLower := strings.ToLower(fullURL)
	for _, kw := range urlKeywords {
		if strings.Contains(urlLower, kw) {
			return inferTypeFromText(urlLower), model.SignalURLKeyword, true
		}
	}
	return "", "", false
}

func urlExtension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	return ext
}

// inferTypeFromText 从关键词上下文猜类型，猜不出就是 unknown
func inferTypeFromText(text string) string {
	for ext := range knownExtensions {
		if strings.Contains(text, ext) {
			return model.FileTypeForExtension(ext)
		}
	}
	return "unknown"
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
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

// extractFilename prefers the URL path basename, falls back to cleaned link
// text, and finally to a deterministic fingerprint-derived name.
func extractFilename(rawURL, linkText, fingerprint string, ordinal int) string {
	if u, err := url.Parse(rawURL); err == nil {
		name := path.Base(u.Path)
		if name != "" && name != "." && name != "/" && strings.Contains(name, ".") {
			if decoded, derr := url.PathUnescape(name); derr == nil {
				return decoded
			}
			return name
		}
	}
	if linkText != "" && len([]rune(linkText)) < 100 {
		clean := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(linkText, ""))
		if clean != "" {
			return clean
		}
	}
	short := fingerprint
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("attachment_%s_%d", short, ordinal)
}
