package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"news-collector/internal/news_collector/model"
)

// 流式读取的分块大小
const readChunkSize = 32 * 1024

// Content-Type 与附件类型的对应关系，服务器标错类型的情况不少见，
// 所以这里只拦截明显矛盾的响应
var typeContentTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"doc":  {"application/msword"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"ppt":  {"application/vnd.ms-powerpoint"},
	"pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	"xls":  {"application/vnd.ms-excel"},
	"xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
}

var titleUnsafe = regexp.MustCompile(`[^\p{L}\p{N}\s._-]`)

// Downloader fetches attachment bodies under a crawl-cycle-wide concurrency
// cap and rate limit. One Downloader is built per crawl job and shared across
// all items in that cycle.
type Downloader struct {
	client  *http.Client
	log     *zap.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewDownloader builds a downloader whose semaphore and rate limiter span
// every item processed during the cycle.
func NewDownloader(client *http.Client, log *zap.Logger, cfg model.ProcessorConfig) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	workers := cfg.MaxDownloadWorkers
	if workers <= 0 {
		workers = model.DefaultMaxDownloadWorkers
	}
	perSec := cfg.DownloadRatePerSec
	if perSec <= 0 {
		perSec = model.DefaultDownloadRatePerSec
	}
	return &Downloader{
		client:  client,
		log:     log,
		sem:     semaphore.NewWeighted(int64(workers)),
		limiter: rate.NewLimiter(rate.Limit(perSec), workers),
	}
}

// Download fetches every candidate of one item concurrently and returns one
// Attachment record per candidate, in candidate order. A failed or oversized
// download produces a terminal record with no bytes retained; it never fails
// the item. Filenames are prefixed with the item title and deduplicated with
// a counter suffix.
func (d *Downloader) Download(ctx context.Context, title string, candidates []model.AttachmentCandidate, cfg model.ProcessorConfig) []model.Attachment {
	if len(candidates) == 0 {
		return nil
	}
	results := make([]model.Attachment, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand model.AttachmentCandidate) {
			defer wg.Done()
			results[i] = d.fetchOne(ctx, cand, cfg)
		}(i, cand)
	}
	wg.Wait()

	prefix := sanitizeTitle(title)
	seen := make(map[string]int, len(results))
	for i := range results {
		name := results[i].Filename
		if prefix != "" {
			name = prefix + "_" + name
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			seen[name] = 1
		}
		results[i].Filename = name
	}
	return results
}

func (d *Downloader) fetchOne(ctx context.Context, cand model.AttachmentCandidate, cfg model.ProcessorConfig) model.Attachment {
	att := model.Attachment{
		ItemFingerprint: cand.ItemFingerprint,
		Filename:        cand.Filename,
		Type:            cand.InferredType,
		SourceURL:       cand.URL,
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		att.Status = model.AttachmentFailed
		att.Error = "download window closed before slot acquired"
		return att
	}
	defer d.sem.Release(1)

	if err := d.limiter.Wait(ctx); err != nil {
		att.Status = model.AttachmentFailed
		att.Error = "download window closed before rate slot"
		return att
	}

	// 每个附件独立计时，单个超时不影响同条新闻的其他附件
	dctx, cancel := context.WithTimeout(ctx, cfg.AttachmentTimeout())
	defer cancel()

	body, size, err := d.stream(dctx, cand, cfg.MaxAttachmentSize)
	switch {
	case errors.Is(err, errTooLarge):
		att.Status = model.AttachmentSkipSize
		att.SizeBytes = size // 已读到的下界，真实大小只会更大
		att.Error = fmt.Sprintf("exceeds max_attachment_size %d", cfg.MaxAttachmentSize)
		d.log.Warn("attachment exceeds size limit",
			zap.String("url", cand.URL),
			zap.Int64("limit", cfg.MaxAttachmentSize))
	case errors.Is(err, errBadContentType):
		att.Status = model.AttachmentSkipType
		att.Error = err.Error()
	case err != nil:
		att.Status = model.AttachmentFailed
		att.Error = err.Error()
		d.log.Warn("attachment download failed",
			zap.String("url", cand.URL),
			zap.Error(err))
	default:
		att.Status = model.AttachmentDownloaded
		att.Bytes = body
		att.SizeBytes = size
		att.DownloadedAt = time.Now()
	}
	return att
}

var (
	errTooLarge       = errors.New("attachment body too large")
	errBadContentType = errors.New("content type contradicts inferred attachment type")
)

// stream reads the response body in chunks so the size ceiling is enforced
// without buffering an unbounded payload. On overflow the partial buffer is
// dropped before returning.
func (d *Downloader) stream(ctx context.Context, cand model.AttachmentCandidate, maxSize int64) ([]byte, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cand.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; news-collector/1.0)")

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("timed out: %w", ctx.Err())
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := checkContentType(cand.InferredType, resp.Header.Get("Content-Type")); err != nil {
		return nil, 0, err
	}
	// Content-Length 可信时提前拒绝，省一次完整传输
	if resp.ContentLength > 0 && resp.ContentLength > maxSize {
		return nil, resp.ContentLength, errTooLarge
	}

	var (
		buf   []byte
		chunk = make([]byte, readChunkSize)
		total int64
	)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > maxSize {
				return nil, total, errTooLarge
			}
			buf = append(buf, chunk[:n]...)
		}
		if rerr == io.EOF {
			return buf, total, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return nil, total, fmt.Errorf("timed out after %d bytes: %w", total, ctx.Err())
			}
			return nil, total, rerr
		}
	}
}

// checkContentType only rejects responses that declare a well-known type
// different from the inferred one. Empty or generic content types pass.
func checkContentType(inferred, header string) error {
	if header == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return nil
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "application/octet-stream" || strings.HasPrefix(mediaType, "binary/") {
		return nil
	}
	want, ok := typeContentTypes[inferred]
	if !ok {
		return nil
	}
	for _, w := range want {
		if mediaType == w {
			return nil
		}
	}
	// 声明为页面的响应基本可以确定不是文档本体
	if strings.HasPrefix(mediaType, "text/html") {
		return fmt.Errorf("%w: got %s for %s", errBadContentType, mediaType, inferred)
	}
	return nil
}

// sanitizeTitle trims the item title into a filesystem-safe filename prefix.
func sanitizeTitle(title string) string {
	clean := titleUnsafe.ReplaceAllString(title, "")
	clean = strings.Join(strings.Fields(clean), "_")
	runes := []rune(clean)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	return strings.Trim(string(runes), "._-")
}
