// Package extract holds the pluggable attachment text extractors. Extractors
// are keyed by file type; anything without a registered extractor is stored
// as-is with no excerpt.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFormat 该类型没有注册解析器
	ErrUnsupportedFormat = errors.New("unsupported attachment format")
	// ErrCorruptFile 文件内容与声明的类型不符或已损坏
	ErrCorruptFile = errors.New("corrupt attachment file")
)

// Extractor turns attachment bytes of one file type into plain text.
type Extractor interface {
	// Extract returns the extracted text, bounded by maxChars.
	Extract(ctx context.Context, data []byte, maxChars int) (string, error)
}

// Registry maps file types to extractors. The zero value is unusable; use
// NewRegistry, which pre-registers the built-in extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the plain-text extractor installed.
// Binary document extractors (pdf, docx, ...) plug in via Register.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("txt", plainText{})
	return r
}

// Register installs an extractor for a file type, replacing any previous one.
func (r *Registry) Register(fileType string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[strings.ToLower(fileType)] = e
}

// Extract runs the extractor registered for fileType. Unknown types return
// ErrUnsupportedFormat so callers can degrade instead of failing the item.
func (r *Registry) Extract(ctx context.Context, fileType string, data []byte, maxChars int) (string, error) {
	r.mu.RLock()
	e, ok := r.extractors[strings.ToLower(fileType)]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileType)
	}
	return e.Extract(ctx, data, maxChars)
}

// Supports reports whether an extractor exists for the file type.
func (r *Registry) Supports(fileType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.extractors[strings.ToLower(fileType)]
	return ok
}

// plainText handles text attachments; it rejects bytes that are not valid
// UTF-8 since that almost always means a mislabelled binary.
type plainText struct{}

func (plainText) Extract(_ context.Context, data []byte, maxChars int) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid utf-8 text", ErrCorruptFile)
	}
	text := strings.TrimSpace(string(data))
	if maxChars > 0 {
		if runes := []rune(text); len(runes) > maxChars {
			text = string(runes[:maxChars])
		}
	}
	return text, nil
}
