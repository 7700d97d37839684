package model

import "time"

// CandidateItem is one raw entry produced by a source fetch. It only lives
// inside a single crawl cycle.
type CandidateItem struct {
	SourceName  string    `json:"source_name"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"` // 零值表示源未提供发布时间
	RawExcerpt  string    `json:"raw_excerpt"`
}

// FilteredItem is a CandidateItem that survived keyword and freshness rules.
// Fingerprint is the stable dedup key across cycles.
type FilteredItem struct {
	CandidateItem
	Fingerprint string `json:"fingerprint"`
}

// AttachmentSignal 记录附件是通过哪条规则识别出来的
type AttachmentSignal string

const (
	SignalExtension  AttachmentSignal = "extension"
	SignalLinkText   AttachmentSignal = "link_text"
	SignalURLKeyword AttachmentSignal = "url_keyword"
)

// AttachmentCandidate is a link classified as a probable attachment,
// deduplicated by normalized URL within its item.
type AttachmentCandidate struct {
	ItemFingerprint string           `json:"item_fingerprint"`
	URL             string           `json:"url"`
	InferredType    string           `json:"inferred_type"` // pdf/doc/docx/ppt/pptx/xls/xlsx/unknown
	Signal          AttachmentSignal `json:"source_signal"`
	Filename        string           `json:"filename"`
	LinkText        string           `json:"link_text,omitempty"`
}

// AttachmentStatus 附件终态，一经写入不再变更
type AttachmentStatus string

const (
	AttachmentDownloaded AttachmentStatus = "downloaded"
	AttachmentSkipSize   AttachmentStatus = "skipped_size"
	AttachmentSkipType   AttachmentStatus = "skipped_type"
	AttachmentFailed     AttachmentStatus = "failed"
)

// Attachment is the downloaded (or rejected) record for one candidate.
// Bytes are carried in memory until the processor hands them to the store;
// StorageRef is filled by the store on PutBlob.
type Attachment struct {
	ItemFingerprint string           `bson:"item_fingerprint" json:"item_fingerprint"`
	Filename        string           `bson:"filename" json:"filename"`
	Type            string           `bson:"type" json:"type"`
	SizeBytes       int64            `bson:"size_bytes" json:"size_bytes"`
	Bytes           []byte           `bson:"-" json:"-"`
	StorageRef      string           `bson:"storage_ref,omitempty" json:"storage_ref,omitempty"`
	Status          AttachmentStatus `bson:"status" json:"status"`
	Error           string           `bson:"error,omitempty" json:"error,omitempty"`
	TextExcerpt     string           `bson:"text_excerpt,omitempty" json:"text_excerpt,omitempty"`
	DownloadedAt    time.Time        `bson:"downloaded_at" json:"downloaded_at"`
	SourceURL       string           `bson:"source_url" json:"source_url"`
}

// OutputFormat 处理器序列化格式
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatText     OutputFormat = "text"
)

// ProcessedNews is the unit persisted to the content store. At most one
// entry exists per fingerprint per knowledge base; re-ingestion overwrites.
type ProcessedNews struct {
	Fingerprint string       `bson:"fingerprint" json:"fingerprint"`
	SourceName  string       `bson:"source_name" json:"source_name"`
	Title       string       `bson:"title" json:"title"`
	Summary     string       `bson:"summary" json:"summary"`
	Body        string       `bson:"body" json:"body"`
	Format      OutputFormat `bson:"format" json:"format"`
	URL         string       `bson:"url" json:"url"`
	PublishedAt time.Time    `bson:"published_at" json:"published_at"`
	Attachments []Attachment `bson:"attachments,omitempty" json:"attachments,omitempty"`
	StoredAt    time.Time    `bson:"stored_at" json:"stored_at"`
	KBRef       string       `bson:"kb_ref,omitempty" json:"kb_ref,omitempty"`
}

// FileTypeForExtension maps a lower-case extension to the coarse file type
// used by attachment policy and the pluggable text extractors.
func FileTypeForExtension(ext string) string {
	switch ext {
	case "pdf":
		return "pdf"
	case "doc", "docx":
		return ext
	case "ppt", "pptx":
		return ext
	case "xls", "xlsx":
		return ext
	default:
		return "unknown"
	}
}
