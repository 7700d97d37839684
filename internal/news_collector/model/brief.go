package model

import "time"

// Brief section identifiers. "industry_trends" keeps the name the report
// templates have always used for the trends section.
const (
	SectionSummary     = "summary"
	SectionKeyEvents   = "key_events"
	SectionTrends      = "industry_trends"
	SectionAttachments = "attachments"
)

// KeyEvent 简报中的一条关键事件
type KeyEvent struct {
	Title             string `json:"title"`
	Source            string `json:"source"`
	Time              string `json:"time,omitempty"`
	Summary           string `json:"summary,omitempty"`
	Link              string `json:"link,omitempty"`
	HasAttachments    bool   `json:"has_attachments"`
	AttachmentSummary string `json:"attachment_summary,omitempty"`
}

// TrendStats 趋势章节的聚合结果，对相同输入必须产出相同结果
type TrendStats struct {
	HotTopics          []string       `json:"hot_topics"`
	SourceDistribution map[string]int `json:"source_distribution"`
	TotalAttachments   int            `json:"total_attachments"`
	AttachmentRatio    float64        `json:"attachment_ratio"`
}

// AttachmentTypeStat 按类型统计的附件数量与体积
type AttachmentTypeStat struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"size_bytes"`
}

// AttachmentsSection 附件章节
type AttachmentsSection struct {
	TotalAttachments int                           `json:"total_attachments"`
	TotalSizeBytes   int64                         `json:"total_size_bytes"`
	TypeDistribution map[string]AttachmentTypeStat `json:"type_distribution"`
	NewsTitles       []string                      `json:"news_titles"`
}

// BriefSections holds every built section. A requested section that had no
// content is present but empty; the renderer prints an explicit marker.
type BriefSections struct {
	Summary     string              `json:"summary,omitempty"`
	KeyEvents   []KeyEvent          `json:"key_events,omitempty"`
	Trends      *TrendStats         `json:"industry_trends,omitempty"`
	Attachments *AttachmentsSection `json:"attachments,omitempty"`
}

// Brief is the generated structured daily summary. Read-only once generated.
type Brief struct {
	Title       string        `json:"title"`
	Template    string        `json:"template"`
	Language    string        `json:"language"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	NewsCount   int           `json:"news_count"`
	Sections    BriefSections `json:"sections"`
	Requested   []string      `json:"requested_sections"`
	Content     string        `json:"content"` // 渲染后的正文
	GeneratedAt time.Time     `json:"generated_at"`
}
