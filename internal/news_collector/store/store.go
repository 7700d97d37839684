// Package store persists processed news, attachment blobs and tenant
// configurations. The Mongo implementation backs production; the memory
// implementation backs tests.
package store

import (
	"context"
	"errors"
	"time"

	"news-collector/internal/news_collector/model"
)

// 存储层哨兵错误，由 processor 映射为对应的 ProcessingError
var (
	ErrUnavailable   = errors.New("content store unreachable")
	ErrInvalidKB     = errors.New("knowledge base does not exist")
	ErrQuotaExceeded = errors.New("knowledge base quota exceeded")
	ErrNotFound      = errors.New("not found")
)

// ContentStore is the persistence boundary for one knowledge base namespace.
// PutNews is an upsert keyed by (kb, fingerprint): re-ingesting a fingerprint
// overwrites rather than duplicates.
type ContentStore interface {
	PutNews(ctx context.Context, kbID string, news model.ProcessedNews) (kbRef string, err error)
	PutBlob(ctx context.Context, kbID string, att model.Attachment) (storageRef string, err error)
	QueryWindow(ctx context.Context, kbIDs []string, start, end time.Time) ([]model.ProcessedNews, error)
	DeleteOlderThan(ctx context.Context, kbID string, cutoff time.Time) (int64, error)
}

// ConfigStore persists per-tenant configuration documents.
type ConfigStore interface {
	SaveTenantConfig(ctx context.Context, cfg model.TenantConfig) error
	GetTenantConfig(ctx context.Context, tenantID string) (model.TenantConfig, error)
	DeleteTenantConfig(ctx context.Context, tenantID string) error
	ListTenantConfigs(ctx context.Context) ([]model.TenantConfig, error)
}
