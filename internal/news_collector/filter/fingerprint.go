package filter

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// 常见跟踪参数，去重时剥掉它们，避免同一链接因 utm 后缀被当成两个附件
var trackingParams = map[string]bool{
	"fbclid":   true,
	"gclid":    true,
	"igshid":   true,
	"mc_cid":   true,
	"mc_eid":   true,
	"ref":      true,
	"spm":      true,
	"yclid":    true,
	"_ga":      true,
	"share_id": true,
}

func isTrackingParam(key string) bool {
	k := strings.ToLower(key)
	return trackingParams[k] || strings.HasPrefix(k, "utm_")
}

// CanonicalURL strips query and fragment entirely and lower-cases the host.
// This is the form hashed into the item fingerprint: two links to the same
// article must collapse no matter what parameters they arrived with.
func CanonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

// NormalizeURL keeps meaningful query parameters (an attachment served as
// download.php?id=42 must stay distinct) but drops tracking parameters and
// the fragment, and sorts what remains so the result is stable.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	u.RawFragment = ""
	q := u.Query()
	kept := url.Values{}
	for key, vals := range q {
		if isTrackingParam(key) {
			continue
		}
		for _, v := range vals {
			kept.Add(key, v)
		}
	}
	keys := make([]string, 0, len(kept))
	for k := range kept {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		for _, v := range kept[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = b.String()
	return u.String()
}

// Fingerprint derives the stable dedup key of a logical news item from its
// lower-cased title and canonicalized URL.
func Fingerprint(title, rawURL string) string {
	h := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(title)) + "|" + CanonicalURL(rawURL)))
	return fmt.Sprintf("%x", h)
}
