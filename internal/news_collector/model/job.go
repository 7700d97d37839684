package model

import "time"

// JobKind 任务类型
type JobKind string

const (
	JobCrawl   JobKind = "crawl"
	JobReport  JobKind = "report"
	JobCleanup JobKind = "cleanup"
)

// JobStatus 任务状态机: pending → running → {succeeded, failed, timed_out}
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether the status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobTimedOut
}

// SourceError records one isolated per-source failure inside an otherwise
// successful crawl cycle.
type SourceError struct {
	SourceName string `json:"source_name"`
	Error      string `json:"error"`
}

// JobRun is one execution instance of a scheduled cycle. The scheduler
// service owns its lifecycle; the terminal status is set exactly once.
type JobRun struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	Kind       JobKind   `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	// 抓取周期统计：部分失败仍计成功
	ItemsProcessed int           `json:"items_processed,omitempty"`
	SourceErrors   []SourceError `json:"source_errors,omitempty"`
	BriefRef       string        `json:"brief_ref,omitempty"` // report 任务产出的简报引用
}

// JobOutcome is the payload handed to the notification sink once a job
// reaches a terminal state.
type JobOutcome struct {
	Job   JobRun `json:"job"`
	Brief *Brief `json:"brief,omitempty"`
}
