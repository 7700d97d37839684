package model

// SourceKind 新闻源类型
type SourceKind string

const (
	SourceKindRSS  SourceKind = "rss"
	SourceKindHTML SourceKind = "html"
)

// SourceConfig describes one news source belonging to a tenant. Identity is
// Name (unique per tenant). A crawl cycle works on a snapshot of this value,
// so mutating the stored config never affects a cycle already in flight.
type SourceConfig struct {
	Name            string     `bson:"name" json:"name"`
	EndpointURL     string     `bson:"endpoint_url" json:"endpoint_url"`
	Kind            SourceKind `bson:"kind" json:"kind"`
	FeedURL         string     `bson:"feed_url,omitempty" json:"feed_url,omitempty"` // RSS 源的订阅地址，缺省用 EndpointURL
	Keywords        []string   `bson:"keywords,omitempty" json:"keywords,omitempty"`
	ExcludeKeywords []string   `bson:"exclude_keywords,omitempty" json:"exclude_keywords,omitempty"`
	MaxItems        int        `bson:"max_items" json:"max_items"`
	Enabled         bool       `bson:"enabled" json:"enabled"`
}

// FeedEndpoint 返回实际抓取地址
func (s SourceConfig) FeedEndpoint() string {
	if s.Kind == SourceKindRSS && s.FeedURL != "" {
		return s.FeedURL
	}
	return s.EndpointURL
}
