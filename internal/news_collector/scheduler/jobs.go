package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"news-collector/internal/news_collector/attachment"
	"news-collector/internal/news_collector/filter"
	"news-collector/internal/news_collector/model"
)

// 同一周期内并行抓取的来源数
const sourceParallelism = 4

func (s *Service) runCrawl(ctx context.Context, cfg model.TenantConfig) (int, []model.SourceError, error) {
	return s.crawlSources(ctx, cfg, cfg.Sources)
}

// crawlSources runs one crawl cycle over the given sources. Source and item
// failures are collected, never propagated: the cycle always runs to the end
// of whatever work the context allows.
func (s *Service) crawlSources(ctx context.Context, cfg model.TenantConfig, sources []model.SourceConfig) (int, []model.SourceError, error) {
	// 下载器的并发闸与限速器覆盖整个周期，而不是单条新闻
	dl := attachment.NewDownloader(s.client, s.log, cfg.Processor)
	now := time.Now()

	var (
		mu        sync.Mutex
		claimed   = make(map[string]bool)
		processed int
		srcErrs   []model.SourceError
	)
	fail := func(source string, err error) {
		mu.Lock()
		srcErrs = append(srcErrs, model.SourceError{SourceName: source, Error: err.Error()})
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(sourceParallelism)
	for _, src := range sources {
		if !src.Enabled {
			continue
		}
		src := src
		g.Go(func() error {
			items, err := s.fetch.Fetch(ctx, src)
			if err != nil {
				fail(src.Name, err)
				return nil
			}
			filtered := filter.Apply(items, src, now, cfg.Scheduler.Lookback())
			for _, item := range filtered {
				if ctx.Err() != nil {
					return nil
				}
				mu.Lock()
				if claimed[item.Fingerprint] {
					mu.Unlock()
					continue
				}
				claimed[item.Fingerprint] = true
				mu.Unlock()

				if err := s.processItem(ctx, item, cfg, dl); err != nil {
					fail(src.Name, err)
					continue
				}
				mu.Lock()
				processed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(srcErrs, func(i, j int) bool {
		if srcErrs[i].SourceName == srcErrs[j].SourceName {
			return srcErrs[i].Error < srcErrs[j].Error
		}
		return srcErrs[i].SourceName < srcErrs[j].SourceName
	})
	s.log.Info("crawl cycle finished",
		zap.String("tenant", cfg.TenantID),
		zap.Int("items_processed", processed),
		zap.Int("source_errors", len(srcErrs)))
	return processed, srcErrs, nil
}

// processItem fetches the item page once and feeds it to both the attachment
// resolver and the content processor.
func (s *Service) processItem(ctx context.Context, item model.FilteredItem, cfg model.TenantConfig, dl *attachment.Downloader) error {
	pageHTML, err := s.fetch.FetchPage(ctx, item.URL)
	if err != nil {
		// 取不到正文页不致命，退回摘要入库
		s.log.Debug("item page fetch failed, storing excerpt only",
			zap.String("url", item.URL),
			zap.Error(err))
		pageHTML = ""
	}

	var attachments []model.Attachment
	if cfg.Processor.DownloadAttachments && pageHTML != "" {
		candidates, skipped := attachment.Resolve(item, pageHTML, cfg.Processor)
		attachments = append(attachments, skipped...)
		if len(candidates) > 0 {
			attachments = append(attachments, dl.Download(ctx, item.Title, candidates, cfg.Processor)...)
		}
	}

	_, err = s.proc.Process(ctx, item, pageHTML, attachments, cfg.Processor)
	return err
}

// runReport generates the scheduled brief over the trailing 24h window in the
// tenant's time zone.
func (s *Service) runReport(ctx context.Context, cfg model.TenantConfig) (*model.Brief, error) {
	end := time.Now().In(cfg.Location())
	start := end.Add(-24 * time.Hour)
	return s.reports.Generate(ctx, cfg.Report, start, end)
}

// runCleanup drops stored news and blobs past the retention window.
func (s *Service) runCleanup(ctx context.Context, cfg model.TenantConfig) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -cfg.Processor.RetentionDays)
	removed, err := s.content.DeleteOlderThan(ctx, cfg.Processor.KBID, cutoff)
	if err != nil {
		return 0, err
	}
	s.log.Info("cleanup finished",
		zap.String("tenant", cfg.TenantID),
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff))
	return removed, nil
}

// TriggerCrawl runs one synchronous crawl for the API's test endpoint. With a
// source name it crawls that source alone; empty means every enabled source.
// The run passes through the same gate and timeout as scheduled jobs.
func (s *Service) TriggerCrawl(ctx context.Context, tenantID, sourceName string) (model.JobRun, error) {
	s.mu.Lock()
	t, ok := s.tenants[tenantID]
	if !ok {
		s.mu.Unlock()
		return model.JobRun{}, fmt.Errorf("unknown tenant %q", tenantID)
	}
	cfg := t.cfg
	gate := t.gate
	s.seq++
	run := model.JobRun{
		JobID:    fmt.Sprintf("%s-crawl-manual-%d", tenantID, s.seq),
		TenantID: tenantID,
		Kind:     model.JobCrawl,
		Status:   model.JobPending,
	}
	s.recordLocked(run)
	s.mu.Unlock()

	sources := cfg.Sources
	if sourceName != "" {
		sources = nil
		for _, src := range cfg.Sources {
			if src.Name == sourceName {
				src.Enabled = true // 测试抓取无视停用标记
				sources = []model.SourceConfig{src}
				break
			}
		}
		if len(sources) == 0 {
			run.Status = model.JobFailed
			run.Error = fmt.Sprintf("unknown source %q", sourceName)
			run.FinishedAt = time.Now()
			s.record(run)
			return run, fmt.Errorf("unknown source %q", sourceName)
		}
	}

	if err := gate.Acquire(ctx, 1); err != nil {
		run.Status = model.JobFailed
		run.Error = "cancelled while queued"
		run.FinishedAt = time.Now()
		s.record(run)
		return run, err
	}
	defer gate.Release(1)

	run.Status = model.JobRunning
	run.StartedAt = time.Now()
	s.record(run)

	jctx, cancel := context.WithTimeout(ctx, cfg.Scheduler.JobTimeout())
	defer cancel()

	var err error
	run.ItemsProcessed, run.SourceErrors, err = s.crawlSources(jctx, cfg, sources)
	if err == nil && len(run.SourceErrors) > 0 && run.ItemsProcessed == 0 {
		err = fmt.Errorf("all %d sources failed", len(run.SourceErrors))
	}
	switch {
	case jctx.Err() == context.DeadlineExceeded:
		run.Status = model.JobTimedOut
		run.Error = (&model.SchedulerError{TenantID: tenantID, Kind: model.SchedJobTimeout, Err: jctx.Err()}).Error()
	case err != nil:
		run.Status = model.JobFailed
		run.Error = err.Error()
	default:
		run.Status = model.JobSucceeded
	}
	run.FinishedAt = time.Now()
	s.record(run)
	return run, nil
}

// ReportRequest carries the optional overrides of an ad-hoc report call.
type ReportRequest struct {
	Start    time.Time `json:"window_start,omitempty"`
	End      time.Time `json:"window_end,omitempty"`
	Template string    `json:"template,omitempty"`
	Language string    `json:"language,omitempty"`
}

// GenerateReport builds an on-demand brief outside the schedule.
func (s *Service) GenerateReport(ctx context.Context, tenantID string, req ReportRequest) (*model.Brief, error) {
	s.mu.Lock()
	t, ok := s.tenants[tenantID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown tenant %q", tenantID)
	}
	cfg := t.cfg
	s.mu.Unlock()

	rcfg := cfg.Report
	if req.Template != "" {
		rcfg.Template = req.Template
	}
	if req.Language != "" {
		rcfg.Language = req.Language
	}
	end := req.End
	if end.IsZero() {
		end = time.Now().In(cfg.Location())
	}
	start := req.Start
	if start.IsZero() {
		start = end.Add(-24 * time.Hour)
	}
	if !start.Before(end) {
		return nil, &model.GenerationError{
			Kind: model.GenNoContent,
			Err:  fmt.Errorf("window start %s is not before end %s", start, end),
		}
	}
	return s.reports.Generate(ctx, rcfg, start, end)
}
