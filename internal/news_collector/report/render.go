package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"news-collector/internal/news_collector/model"
)

// labels holds every localized string used by the renderers.
type labels struct {
	titleDaily     string
	titleExecutive string
	titleIndustry  string
	summaryLine    string
	secSummary     string
	secKeyEvents   string
	secTrends      string
	secAttachments string
	emptySection   string
	hotTopics      string
	sourceDist     string
	attachTotal    string
	attachRatio    string
	attachTypes    string
	attachNews     string
	withAttach     string
}

var zhCN = labels{
	titleDaily:     "每日新闻简报",
	titleExecutive: "高管摘要",
	titleIndustry:  "行业报告",
	summaryLine:    "本期共收录 %d 条新闻，来自 %d 个来源，含 %d 个附件。",
	secSummary:     "摘要",
	secKeyEvents:   "关键事件",
	secTrends:      "行业趋势",
	secAttachments: "附件",
	emptySection:   "（本期无内容）",
	hotTopics:      "热点话题",
	sourceDist:     "来源分布",
	attachTotal:    "附件总数",
	attachRatio:    "含附件新闻占比",
	attachTypes:    "类型分布",
	attachNews:     "含附件的新闻",
	withAttach:     "附件",
}

var enUS = labels{
	titleDaily:     "Daily News Brief",
	titleExecutive: "Executive Summary",
	titleIndustry:  "Industry Report",
	summaryLine:    "%d news items collected from %d sources, with %d attachments.",
	secSummary:     "Summary",
	secKeyEvents:   "Key Events",
	secTrends:      "Industry Trends",
	secAttachments: "Attachments",
	emptySection:   "(no content this period)",
	hotTopics:      "Hot topics",
	sourceDist:     "Source distribution",
	attachTotal:    "Total attachments",
	attachRatio:    "Share of news with attachments",
	attachTypes:    "Type distribution",
	attachNews:     "News with attachments",
	withAttach:     "attachments",
}

func lang(code string) labels {
	if code == "en-US" {
		return enUS
	}
	return zhCN
}

func renderBrief(brief *model.Brief, cfg model.ReportConfig) (string, error) {
	switch cfg.Format {
	case model.FormatJSON:
		raw, err := json.MarshalIndent(brief, "", "  ")
		if err != nil {
			return "", err
		}
		return string(raw), nil
	case model.FormatText:
		return renderFlat(brief, cfg, false), nil
	default:
		return renderFlat(brief, cfg, true), nil
	}
}

// renderFlat produces the markdown or plain-text body. Requested sections
// that came up empty get an explicit marker instead of being dropped.
func renderFlat(brief *model.Brief, cfg model.ReportConfig, markdown bool) string {
	l := lang(cfg.Language)
	var b strings.Builder

	if markdown {
		fmt.Fprintf(&b, "# %s\n\n", brief.Title)
	} else {
		b.WriteString(brief.Title + "\n\n")
	}
	fmt.Fprintf(&b, "%s — %s\n\n",
		brief.WindowStart.Format("2006-01-02 15:04"),
		brief.WindowEnd.Format("2006-01-02 15:04"))

	heading := func(name string) {
		if markdown {
			fmt.Fprintf(&b, "## %s\n\n", name)
		} else {
			fmt.Fprintf(&b, "%s\n%s\n\n", name, strings.Repeat("-", len([]rune(name))*2))
		}
	}

	for _, section := range brief.Requested {
		switch section {
		case model.SectionSummary:
			heading(l.secSummary)
			if brief.Sections.Summary == "" {
				b.WriteString(l.emptySection + "\n\n")
			} else {
				b.WriteString(brief.Sections.Summary + "\n\n")
			}
		case model.SectionKeyEvents:
			heading(l.secKeyEvents)
			if len(brief.Sections.KeyEvents) == 0 {
				b.WriteString(l.emptySection + "\n\n")
				continue
			}
			for i, ev := range brief.Sections.KeyEvents {
				if markdown {
					fmt.Fprintf(&b, "%d. **%s** — %s, %s\n", i+1, ev.Title, ev.Source, ev.Time)
				} else {
					fmt.Fprintf(&b, "%d. %s — %s, %s\n", i+1, ev.Title, ev.Source, ev.Time)
				}
				if ev.Summary != "" {
					fmt.Fprintf(&b, "   %s\n", ev.Summary)
				}
				if ev.AttachmentSummary != "" {
					fmt.Fprintf(&b, "   [%s: %s]\n", l.withAttach, ev.AttachmentSummary)
				}
			}
			b.WriteString("\n")
		case model.SectionTrends:
			heading(l.secTrends)
			t := brief.Sections.Trends
			if t == nil {
				b.WriteString(l.emptySection + "\n\n")
				continue
			}
			if len(t.HotTopics) > 0 {
				fmt.Fprintf(&b, "%s: %s\n", l.hotTopics, strings.Join(t.HotTopics, ", "))
			}
			fmt.Fprintf(&b, "%s: %s\n", l.sourceDist, formatDistribution(t.SourceDistribution))
			fmt.Fprintf(&b, "%s: %d\n", l.attachTotal, t.TotalAttachments)
			fmt.Fprintf(&b, "%s: %.0f%%\n\n", l.attachRatio, t.AttachmentRatio*100)
		case model.SectionAttachments:
			heading(l.secAttachments)
			a := brief.Sections.Attachments
			if a == nil {
				b.WriteString(l.emptySection + "\n\n")
				continue
			}
			fmt.Fprintf(&b, "%s: %d (%.1f MB)\n", l.attachTotal,
				a.TotalAttachments, float64(a.TotalSizeBytes)/(1024*1024))
			fmt.Fprintf(&b, "%s: %s\n", l.attachTypes, formatTypeDistribution(a.TypeDistribution))
			fmt.Fprintf(&b, "%s:\n", l.attachNews)
			for i, title := range a.NewsTitles {
				fmt.Fprintf(&b, "%d. %s\n", i+1, title)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func formatDistribution(dist map[string]int) string {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, dist[k]))
	}
	return strings.Join(parts, ", ")
}

func formatTypeDistribution(dist map[string]model.AttachmentTypeStat) string {
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		stat := dist[k]
		parts = append(parts, fmt.Sprintf("%s ×%d (%.1f MB)",
			k, stat.Count, float64(stat.SizeBytes)/(1024*1024)))
	}
	return strings.Join(parts, ", ")
}
