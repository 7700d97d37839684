package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"news-collector/internal/news_collector/model"
)

// Memory is the in-process ContentStore/ConfigStore used by tests. Failure
// knobs let tests exercise the store-unreachable and quota paths.
type Memory struct {
	mu      sync.Mutex
	news    map[string]map[string]model.ProcessedNews // kb → fingerprint → news
	blobs   map[string]blobEntry                      // storage_ref → blob
	configs map[string]model.TenantConfig

	// FailWith, when set, makes every content operation return that error.
	FailWith error
	// Quota caps the number of news documents per knowledge base; 0 = unlimited.
	Quota int
	// KnownKBs, when non-empty, restricts writes to the listed knowledge bases.
	KnownKBs map[string]bool
}

type blobEntry struct {
	kbID      string
	data      []byte
	createdAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		news:    make(map[string]map[string]model.ProcessedNews),
		blobs:   make(map[string]blobEntry),
		configs: make(map[string]model.TenantConfig),
	}
}

func (m *Memory) PutNews(_ context.Context, kbID string, news model.ProcessedNews) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	if err := m.checkKB(kbID); err != nil {
		return "", err
	}
	kb := m.news[kbID]
	if kb == nil {
		kb = make(map[string]model.ProcessedNews)
		m.news[kbID] = kb
	}
	if _, exists := kb[news.Fingerprint]; !exists && m.Quota > 0 && len(kb) >= m.Quota {
		return "", fmt.Errorf("%w: kb %s at %d documents", ErrQuotaExceeded, kbID, m.Quota)
	}
	kb[news.Fingerprint] = news
	return kbID + "/" + news.Fingerprint, nil
}

func (m *Memory) PutBlob(_ context.Context, kbID string, att model.Attachment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	if err := m.checkKB(kbID); err != nil {
		return "", err
	}
	ref := fmt.Sprintf("%s/%s/%s", kbID, att.ItemFingerprint, att.Filename)
	m.blobs[ref] = blobEntry{
		kbID:      kbID,
		data:      append([]byte(nil), att.Bytes...),
		createdAt: time.Now(),
	}
	return ref, nil
}

func (m *Memory) QueryWindow(_ context.Context, kbIDs []string, start, end time.Time) ([]model.ProcessedNews, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	var out []model.ProcessedNews
	for _, kbID := range kbIDs {
		for _, n := range m.news[kbID] {
			if !n.StoredAt.Before(start) && n.StoredAt.Before(end) {
				out = append(out, n)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoredAt.Equal(out[j].StoredAt) {
			return out[i].Fingerprint < out[j].Fingerprint
		}
		return out[i].StoredAt.Before(out[j].StoredAt)
	})
	return out, nil
}

func (m *Memory) DeleteOlderThan(_ context.Context, kbID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	var deleted int64
	for fp, n := range m.news[kbID] {
		if n.StoredAt.Before(cutoff) {
			delete(m.news[kbID], fp)
			deleted++
		}
	}
	for ref, b := range m.blobs {
		if b.kbID == kbID && b.createdAt.Before(cutoff) {
			delete(m.blobs, ref)
		}
	}
	return deleted, nil
}

func (m *Memory) SaveTenantConfig(_ context.Context, cfg model.TenantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.UpdatedAt = time.Now()
	m.configs[cfg.TenantID] = cfg
	return nil
}

func (m *Memory) GetTenantConfig(_ context.Context, tenantID string) (model.TenantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[tenantID]
	if !ok {
		return cfg, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) DeleteTenantConfig(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[tenantID]; !ok {
		return ErrNotFound
	}
	delete(m.configs, tenantID)
	return nil
}

func (m *Memory) ListTenantConfigs(_ context.Context) ([]model.TenantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.TenantConfig, 0, len(m.configs))
	for _, cfg := range m.configs {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

// NewsCount reports stored documents for one knowledge base (test helper).
func (m *Memory) NewsCount(kbID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.news[kbID])
}

// GetNews fetches one stored document by fingerprint (test helper).
func (m *Memory) GetNews(kbID, fingerprint string) (model.ProcessedNews, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.news[kbID][fingerprint]
	return n, ok
}

// BlobCount reports stored blobs for one knowledge base (test helper).
func (m *Memory) BlobCount(kbID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.blobs {
		if b.kbID == kbID {
			n++
		}
	}
	return n
}

func (m *Memory) checkKB(kbID string) error {
	if kbID == "" {
		return fmt.Errorf("%w: empty kb id", ErrInvalidKB)
	}
	if len(m.KnownKBs) > 0 && !m.KnownKBs[kbID] {
		return fmt.Errorf("%w: %s", ErrInvalidKB, kbID)
	}
	return nil
}
