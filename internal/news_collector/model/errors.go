package model

import "fmt"

// 错误分类：各阶段失败只影响自己的 source/item/attachment，
// 只有存储级或配置级失败才升级为任务失败。

// FetchErrorKind classifies source fetch failures.
type FetchErrorKind string

const (
	FetchUnreachable FetchErrorKind = "unreachable"
	FetchMalformed   FetchErrorKind = "malformed"
	FetchTimeout     FetchErrorKind = "timeout"
)

// FetchError is surfaced per source after retries are exhausted; it never
// aborts the rest of the cycle.
type FetchError struct {
	Source string
	Kind   FetchErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ProcessingErrorKind classifies content-store write failures.
type ProcessingErrorKind string

const (
	ProcStoreUnreachable ProcessingErrorKind = "store_unreachable"
	ProcInvalidKBID      ProcessingErrorKind = "invalid_kb_id"
	ProcQuotaExceeded    ProcessingErrorKind = "quota_exceeded"
)

// ProcessingError aborts the owning item only.
type ProcessingError struct {
	Fingerprint string
	Kind        ProcessingErrorKind
	Err         error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process %s: %s: %v", e.Fingerprint, e.Kind, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies report failures.
type GenerationErrorKind string

const (
	GenNoContent     GenerationErrorKind = "no_content"
	GenKBUnreachable GenerationErrorKind = "kb_unreachable"
)

// GenerationError aborts the whole report job; partial sections are
// discarded, never emitted half-built.
type GenerationError struct {
	Kind GenerationErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate report: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("generate report: %s", e.Kind)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SchedulerErrorKind classifies scheduler-level failures.
type SchedulerErrorKind string

const (
	SchedJobTimeout    SchedulerErrorKind = "job_timeout"
	SchedConfigInvalid SchedulerErrorKind = "config_invalid"
)

// SchedulerError: config_invalid is raised at configuration-update time and
// prevents that tenant's scheduler from starting.
type SchedulerError struct {
	TenantID string
	Kind     SchedulerErrorKind
	Err      error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler tenant=%s: %s: %v", e.TenantID, e.Kind, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }
