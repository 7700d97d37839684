package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// 默认策略值沿用线上多年的口径
const (
	DefaultMaxItemsPerSource     = 10
	DefaultMaxContentLength      = 5000
	DefaultMaxAttachmentSize     = 50 * 1024 * 1024 // 50MiB
	DefaultAttachmentTimeoutSec  = 60
	DefaultFetchTimeoutSec       = 30
	DefaultLookbackHours         = 24
	DefaultMaxConcurrentJobs     = 3
	DefaultJobTimeoutSec         = 1800
	DefaultMaxDownloadWorkers    = 4
	DefaultDownloadRatePerSec    = 8
	DefaultMaxAttachSummaryChars = 500
	DefaultRetentionDays         = 30
)

// DefaultAttachmentTypes 允许入库的附件类型
var DefaultAttachmentTypes = []string{"pdf", "doc", "docx", "ppt", "pptx"}

// SchedulerConfig 租户级调度设置
type SchedulerConfig struct {
	Enabled           bool   `bson:"enabled" json:"enabled"`
	Timezone          string `bson:"timezone" json:"timezone"`
	MaxConcurrentJobs int    `bson:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	JobTimeoutSec     int    `bson:"job_timeout" json:"job_timeout"`
	LookbackHours     int    `bson:"lookback_hours" json:"lookback_hours"`
}

// JobTimeout 任务整体超时
func (c SchedulerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

// Lookback 抓取周期的新鲜度窗口
func (c SchedulerConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackHours) * time.Hour
}

// ProcessorConfig 内容处理与附件策略
type ProcessorConfig struct {
	KBID                 string       `bson:"kb_id" json:"kb_id"`
	MaxContentLength     int          `bson:"max_content_length" json:"max_content_length"`
	Format               OutputFormat `bson:"format_output" json:"format_output"`
	DownloadAttachments  bool         `bson:"download_attachments" json:"download_attachments"`
	AttachmentTypes      []string     `bson:"attachment_types" json:"attachment_types"`
	MaxAttachmentSize    int64        `bson:"max_attachment_size" json:"max_attachment_size"`
	AttachmentTimeoutSec int          `bson:"attachment_timeout" json:"attachment_timeout"`
	MaxDownloadWorkers   int          `bson:"max_download_workers" json:"max_download_workers"`
	DownloadRatePerSec   float64      `bson:"download_rate_per_sec" json:"download_rate_per_sec"`
	RetentionDays        int          `bson:"retention_days" json:"retention_days"`
}

// AttachmentTimeout 单个附件的独立下载期限
func (c ProcessorConfig) AttachmentTimeout() time.Duration {
	return time.Duration(c.AttachmentTimeoutSec) * time.Second
}

// AllowsType reports whether the attachment type passes policy.
func (c ProcessorConfig) AllowsType(t string) bool {
	for _, a := range c.AttachmentTypes {
		if strings.EqualFold(a, t) {
			return true
		}
	}
	return false
}

// ReportConfig 简报生成设置
type ReportConfig struct {
	Template               string       `bson:"template" json:"template"`
	Language               string       `bson:"language" json:"language"`
	Sections               []string     `bson:"sections" json:"sections"`
	AttachmentSummary      bool         `bson:"attachment_summary" json:"attachment_summary"`
	MaxAttachSummaryLength int          `bson:"max_attachment_summary_length" json:"max_attachment_summary_length"`
	Format                 OutputFormat `bson:"output_format" json:"output_format"`
	KBIDs                  []string     `bson:"kb_ids,omitempty" json:"kb_ids,omitempty"`
}

// ScheduleConfig 三条调度表达式，支持标准 cron 与 "@every 2h" 间隔形式
type ScheduleConfig struct {
	Crawl   string `bson:"crawl_schedule" json:"crawl_schedule"`
	Report  string `bson:"report_schedule" json:"report_schedule"`
	Cleanup string `bson:"cleanup_schedule" json:"cleanup_schedule"`
}

// TenantConfig is the full persisted configuration of one tenant. Each job
// invocation receives a snapshot copy; nothing here is shared mutable state.
type TenantConfig struct {
	TenantID  string          `bson:"tenant_id" json:"tenant_id"`
	Scheduler SchedulerConfig `bson:"scheduler_config" json:"scheduler_config"`
	Sources   []SourceConfig  `bson:"news_sources" json:"news_sources"`
	Processor ProcessorConfig `bson:"news_processor" json:"news_processor"`
	Report    ReportConfig    `bson:"report_generator" json:"report_generator"`
	Schedule  ScheduleConfig  `bson:"schedule" json:"schedule"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
}

// DefaultTenantConfig returns a config pre-filled with policy defaults.
func DefaultTenantConfig(tenantID string) TenantConfig {
	return TenantConfig{
		TenantID: tenantID,
		Scheduler: SchedulerConfig{
			Enabled:           true,
			Timezone:          "Asia/Shanghai",
			MaxConcurrentJobs: DefaultMaxConcurrentJobs,
			JobTimeoutSec:     DefaultJobTimeoutSec,
			LookbackHours:     DefaultLookbackHours,
		},
		Processor: ProcessorConfig{
			MaxContentLength:     DefaultMaxContentLength,
			Format:               FormatMarkdown,
			DownloadAttachments:  true,
			AttachmentTypes:      append([]string(nil), DefaultAttachmentTypes...),
			MaxAttachmentSize:    DefaultMaxAttachmentSize,
			AttachmentTimeoutSec: DefaultAttachmentTimeoutSec,
			MaxDownloadWorkers:   DefaultMaxDownloadWorkers,
			DownloadRatePerSec:   DefaultDownloadRatePerSec,
			RetentionDays:        DefaultRetentionDays,
		},
		Report: ReportConfig{
			Template:               "daily_brief",
			Language:               "zh-CN",
			Sections:               []string{SectionSummary, SectionKeyEvents, SectionTrends, SectionAttachments},
			AttachmentSummary:      true,
			MaxAttachSummaryLength: DefaultMaxAttachSummaryChars,
			Format:                 FormatMarkdown,
		},
		Schedule: ScheduleConfig{
			Crawl:   "0 */2 * * *",
			Report:  "0 9 * * *",
			Cleanup: "0 2 * * 0",
		},
	}
}

// Normalize fills zero-valued policy fields with defaults.
func (c *TenantConfig) Normalize() {
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Asia/Shanghai"
	}
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.Scheduler.JobTimeoutSec <= 0 {
		c.Scheduler.JobTimeoutSec = DefaultJobTimeoutSec
	}
	if c.Scheduler.LookbackHours <= 0 {
		c.Scheduler.LookbackHours = DefaultLookbackHours
	}
	if c.Processor.MaxContentLength <= 0 {
		c.Processor.MaxContentLength = DefaultMaxContentLength
	}
	if c.Processor.Format == "" {
		c.Processor.Format = FormatMarkdown
	}
	if len(c.Processor.AttachmentTypes) == 0 {
		c.Processor.AttachmentTypes = append([]string(nil), DefaultAttachmentTypes...)
	}
	if c.Processor.MaxAttachmentSize <= 0 {
		c.Processor.MaxAttachmentSize = DefaultMaxAttachmentSize
	}
	if c.Processor.AttachmentTimeoutSec <= 0 {
		c.Processor.AttachmentTimeoutSec = DefaultAttachmentTimeoutSec
	}
	if c.Processor.MaxDownloadWorkers <= 0 {
		c.Processor.MaxDownloadWorkers = DefaultMaxDownloadWorkers
	}
	if c.Processor.DownloadRatePerSec <= 0 {
		c.Processor.DownloadRatePerSec = DefaultDownloadRatePerSec
	}
	if c.Processor.RetentionDays <= 0 {
		c.Processor.RetentionDays = DefaultRetentionDays
	}
	if c.Report.Template == "" {
		c.Report.Template = "daily_brief"
	}
	if c.Report.Language == "" {
		c.Report.Language = "zh-CN"
	}
	if len(c.Report.Sections) == 0 {
		c.Report.Sections = []string{SectionSummary, SectionKeyEvents, SectionTrends, SectionAttachments}
	}
	if c.Report.MaxAttachSummaryLength <= 0 {
		c.Report.MaxAttachSummaryLength = DefaultMaxAttachSummaryChars
	}
	if c.Report.Format == "" {
		c.Report.Format = FormatMarkdown
	}
	if len(c.Report.KBIDs) == 0 && c.Processor.KBID != "" {
		c.Report.KBIDs = []string{c.Processor.KBID}
	}
	for i := range c.Sources {
		if c.Sources[i].MaxItems <= 0 {
			c.Sources[i].MaxItems = DefaultMaxItemsPerSource
		}
	}
}

var validTemplates = map[string]bool{
	"daily_brief":       true,
	"executive_summary": true,
	"industry_report":   true,
}

var validLanguages = map[string]bool{
	"zh-CN": true,
	"en-US": true,
}

// Validate rejects a config that would break the tenant's scheduler. It is
// called at configuration-update time so the failure is reported to the
// caller, never discovered silently at trigger time.
func (c *TenantConfig) Validate() error {
	fail := func(err error) error {
		return &SchedulerError{TenantID: c.TenantID, Kind: SchedConfigInvalid, Err: err}
	}
	if c.TenantID == "" {
		return fail(fmt.Errorf("tenant_id is empty"))
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fail(fmt.Errorf("timezone %q: %w", c.Scheduler.Timezone, err))
	}
	for field, expr := range map[string]string{
		"crawl_schedule":   c.Schedule.Crawl,
		"report_schedule":  c.Schedule.Report,
		"cleanup_schedule": c.Schedule.Cleanup,
	} {
		if expr == "" {
			continue // 留空表示该周期不调度
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return fail(fmt.Errorf("%s %q: %w", field, expr, err))
		}
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return fail(fmt.Errorf("source with empty name"))
		}
		if seen[s.Name] {
			return fail(fmt.Errorf("duplicate source name %q", s.Name))
		}
		seen[s.Name] = true
		if s.Kind != SourceKindRSS && s.Kind != SourceKindHTML {
			return fail(fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind))
		}
		if s.FeedEndpoint() == "" {
			return fail(fmt.Errorf("source %q: no endpoint", s.Name))
		}
	}
	switch c.Processor.Format {
	case FormatMarkdown, FormatJSON, FormatText:
	default:
		return fail(fmt.Errorf("format_output %q is not one of markdown/json/text", c.Processor.Format))
	}
	if !validTemplates[c.Report.Template] {
		return fail(fmt.Errorf("report template %q", c.Report.Template))
	}
	if !validLanguages[c.Report.Language] {
		return fail(fmt.Errorf("report language %q", c.Report.Language))
	}
	for _, s := range c.Report.Sections {
		switch s {
		case SectionSummary, SectionKeyEvents, SectionTrends, SectionAttachments:
		default:
			return fail(fmt.Errorf("unknown report section %q", s))
		}
	}
	return nil
}

// Location resolves the tenant time zone; Validate guarantees it loads.
func (c TenantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
