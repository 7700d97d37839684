// Package scheduler owns the per-tenant cron runtimes and the job lifecycle.
// Tenants are fully isolated: one tenant's failures, queues and timeouts
// never touch another's.
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"news-collector/internal/news_collector/fetcher"
	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/notify"
	"news-collector/internal/news_collector/processor"
	"news-collector/internal/news_collector/report"
	"news-collector/internal/news_collector/store"
)

// 每个租户保留的历史任务条数
const jobHistoryLimit = 50

// Service runs every tenant's crawl/report/cleanup cycles.
type Service struct {
	log      *zap.Logger
	content  store.ContentStore
	configs  store.ConfigStore
	fetch    *fetcher.Fetcher
	proc     *processor.Processor
	reports  *report.Generator
	notifier notify.Notifier
	client   *http.Client // 附件下载共用的客户端

	mu      sync.Mutex
	tenants map[string]*tenantRuntime
	runs    map[string]model.JobRun
	history map[string][]string // tenant → job ids, newest last
	briefs  map[string]*model.Brief
	seq     int64
}

// tenantRuntime is one tenant's scheduler state. The gate bounds concurrent
// jobs; acquisitions beyond the limit queue rather than drop.
type tenantRuntime struct {
	cfg     model.TenantConfig
	cron    *cron.Cron
	entries map[model.JobKind]cron.EntryID
	gate    *semaphore.Weighted
	running bool
}

func New(log *zap.Logger, content store.ContentStore, configs store.ConfigStore,
	fetch *fetcher.Fetcher, proc *processor.Processor, reports *report.Generator,
	notifier notify.Notifier, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	if notifier == nil {
		notifier = &notify.LogNotifier{Log: log}
	}
	return &Service{
		log:      log,
		content:  content,
		configs:  configs,
		fetch:    fetch,
		proc:     proc,
		reports:  reports,
		notifier: notifier,
		client:   client,
		tenants:  make(map[string]*tenantRuntime),
		runs:     make(map[string]model.JobRun),
		history:  make(map[string][]string),
		briefs:   make(map[string]*model.Brief),
	}
}

// LoadTenants restores persisted tenant configs and starts the enabled ones.
func (s *Service) LoadTenants(ctx context.Context) error {
	cfgs, err := s.configs.ListTenantConfigs(ctx)
	if err != nil {
		return err
	}
	for _, cfg := range cfgs {
		if err := s.install(cfg); err != nil {
			s.log.Error("tenant scheduler not started",
				zap.String("tenant", cfg.TenantID),
				zap.Error(err))
		}
	}
	s.log.Info("tenant schedulers loaded", zap.Int("count", len(cfgs)))
	return nil
}

// UpdateTenant validates, persists and hot-reloads one tenant's config. An
// invalid config is rejected here; a running scheduler keeps its previous
// config untouched.
func (s *Service) UpdateTenant(ctx context.Context, cfg model.TenantConfig) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.configs.SaveTenantConfig(ctx, cfg); err != nil {
		return err
	}
	return s.install(cfg)
}

// install swaps in a fresh runtime for the tenant, preserving the running
// flag across reloads.
func (s *Service) install(cfg model.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := cfg.Scheduler.Enabled
	if old, ok := s.tenants[cfg.TenantID]; ok {
		wasRunning = old.running
		s.stopLocked(old)
	}
	t := &tenantRuntime{
		cfg:     cfg,
		entries: make(map[model.JobKind]cron.EntryID),
		gate:    semaphore.NewWeighted(int64(cfg.Scheduler.MaxConcurrentJobs)),
	}
	s.tenants[cfg.TenantID] = t
	if wasRunning && cfg.Scheduler.Enabled {
		return s.startLocked(t)
	}
	return nil
}

// GetTenant returns the installed config snapshot.
func (s *Service) GetTenant(tenantID string) (model.TenantConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return model.TenantConfig{}, false
	}
	return t.cfg, true
}

// RemoveTenant stops the runtime and deletes the persisted config.
func (s *Service) RemoveTenant(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	if t, ok := s.tenants[tenantID]; ok {
		s.stopLocked(t)
		delete(s.tenants, tenantID)
	}
	s.mu.Unlock()
	return s.configs.DeleteTenantConfig(ctx, tenantID)
}

// StartTenant begins triggering the tenant's scheduled jobs.
func (s *Service) StartTenant(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("unknown tenant %q", tenantID)
	}
	return s.startLocked(t)
}

// StopTenant stops future triggers; jobs already running finish normally.
func (s *Service) StopTenant(tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("unknown tenant %q", tenantID)
	}
	s.stopLocked(t)
	return nil
}

func (s *Service) startLocked(t *tenantRuntime) error {
	if t.running {
		return nil
	}
	loc := t.cfg.Location()
	c := cron.New(cron.WithLocation(loc))
	schedules := map[model.JobKind]string{
		model.JobCrawl:   t.cfg.Schedule.Crawl,
		model.JobReport:  t.cfg.Schedule.Report,
		model.JobCleanup: t.cfg.Schedule.Cleanup,
	}
	tenantID := t.cfg.TenantID
	for kind, expr := range schedules {
		if expr == "" {
			continue
		}
		kind := kind
		id, err := c.AddFunc(expr, func() { s.execute(tenantID, kind) })
		if err != nil {
			// Validate 已拦截非法表达式，这里只可能是并发改配置的窗口
			return &model.SchedulerError{TenantID: tenantID, Kind: model.SchedConfigInvalid, Err: err}
		}
		t.entries[kind] = id
	}
	c.Start()
	t.cron = c
	t.running = true
	s.log.Info("tenant scheduler started",
		zap.String("tenant", tenantID),
		zap.String("timezone", t.cfg.Scheduler.Timezone))
	return nil
}

func (s *Service) stopLocked(t *tenantRuntime) {
	if t.cron != nil {
		t.cron.Stop()
		t.cron = nil
	}
	t.entries = make(map[model.JobKind]cron.EntryID)
	t.running = false
}

// Shutdown stops every tenant's triggers.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		s.stopLocked(t)
	}
	s.log.Info("scheduler service stopped")
}

// execute drives one job run through the state machine. The concurrency gate
// is acquired before the run turns running: triggers above the limit wait in
// line instead of being dropped.
func (s *Service) execute(tenantID string, kind model.JobKind) {
	s.mu.Lock()
	t, ok := s.tenants[tenantID]
	if !ok {
		s.mu.Unlock()
		return
	}
	cfg := t.cfg
	gate := t.gate
	s.seq++
	run := model.JobRun{
		JobID:    fmt.Sprintf("%s-%s-%d", tenantID, kind, s.seq),
		TenantID: tenantID,
		Kind:     kind,
		Status:   model.JobPending,
	}
	s.recordLocked(run)
	s.mu.Unlock()

	if err := gate.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer gate.Release(1)

	run.Status = model.JobRunning
	run.StartedAt = time.Now()
	s.record(run)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.JobTimeout())
	defer cancel()

	done, brief := s.runJob(ctx, cfg, kind, run)
	done.FinishedAt = time.Now()
	s.record(done)

	nctx, ncancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer ncancel()
	s.notifier.JobFinished(nctx, model.JobOutcome{Job: done, Brief: brief})
}

// runJob dispatches by kind and settles the terminal status. For report jobs
// the generated brief rides along so the notification carries the content.
func (s *Service) runJob(ctx context.Context, cfg model.TenantConfig, kind model.JobKind, run model.JobRun) (model.JobRun, *model.Brief) {
	var err error
	var brief *model.Brief
	switch kind {
	case model.JobCrawl:
		run.ItemsProcessed, run.SourceErrors, err = s.runCrawl(ctx, cfg)
		// 部分来源失败只要有产出就算成功
		if err == nil && len(run.SourceErrors) > 0 && run.ItemsProcessed == 0 {
			err = fmt.Errorf("all %d sources failed", len(run.SourceErrors))
		}
	case model.JobReport:
		brief, err = s.runReport(ctx, cfg)
		if err == nil {
			run.BriefRef = fmt.Sprintf("brief/%s/%s", cfg.TenantID, brief.WindowEnd.Format("2006-01-02"))
			s.mu.Lock()
			s.briefs[cfg.TenantID] = brief
			s.mu.Unlock()
		}
	case model.JobCleanup:
		var removed int64
		removed, err = s.runCleanup(ctx, cfg)
		run.ItemsProcessed = int(removed)
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		run.Status = model.JobTimedOut
		serr := &model.SchedulerError{TenantID: cfg.TenantID, Kind: model.SchedJobTimeout, Err: ctx.Err()}
		run.Error = serr.Error()
	case err != nil:
		run.Status = model.JobFailed
		run.Error = err.Error()
	default:
		run.Status = model.JobSucceeded
	}
	return run, brief
}

func (s *Service) record(run model.JobRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(run)
}

func (s *Service) recordLocked(run model.JobRun) {
	if _, seen := s.runs[run.JobID]; !seen {
		h := append(s.history[run.TenantID], run.JobID)
		if len(h) > jobHistoryLimit {
			old := h[0]
			h = h[1:]
			delete(s.runs, old)
		}
		s.history[run.TenantID] = h
	}
	s.runs[run.JobID] = run
}

// TenantStatus is the API view of one tenant's scheduler.
type TenantStatus struct {
	TenantID   string               `json:"tenant_id"`
	Running    bool                 `json:"running"`
	Enabled    bool                 `json:"enabled"`
	Timezone   string               `json:"timezone"`
	NextRuns   map[string]time.Time `json:"next_runs,omitempty"`
	RecentJobs []model.JobRun       `json:"recent_jobs,omitempty"`
}

// Status reports one tenant's runtime state and recent jobs, newest first.
func (s *Service) Status(tenantID string) (TenantStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return TenantStatus{}, fmt.Errorf("unknown tenant %q", tenantID)
	}
	return s.statusLocked(t), nil
}

// AllStatuses lists every tenant for the admin surface.
func (s *Service) AllStatuses() []TenantStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TenantStatus, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, s.statusLocked(t))
	}
	return out
}

func (s *Service) statusLocked(t *tenantRuntime) TenantStatus {
	st := TenantStatus{
		TenantID: t.cfg.TenantID,
		Running:  t.running,
		Enabled:  t.cfg.Scheduler.Enabled,
		Timezone: t.cfg.Scheduler.Timezone,
	}
	if t.cron != nil {
		st.NextRuns = make(map[string]time.Time, len(t.entries))
		for kind, id := range t.entries {
			st.NextRuns[string(kind)] = t.cron.Entry(id).Next
		}
	}
	ids := s.history[t.cfg.TenantID]
	for i := len(ids) - 1; i >= 0; i-- {
		st.RecentJobs = append(st.RecentJobs, s.runs[ids[i]])
	}
	return st
}

// LatestBrief returns the last scheduled brief for the tenant.
func (s *Service) LatestBrief(tenantID string) (*model.Brief, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.briefs[tenantID]
	return b, ok
}
