// Package source classifies the traffic source of a visit from the
// provider's free-text source descriptor and referring URL.
package source

import (
	"regexp"
	"strings"

	"tongjisync/internal/urlparse"
)

// Traffic source types as they appear in stored records.
const (
	Direct       = "直接访问"
	SearchEngine = "搜索引擎"
	ExternalLink = "外部链接"
	CustomSource = "自定义来源"
	Other        = "其他"
	Internal     = "站内来源"

	// PaidPrefix starts every paid type, e.g. "百度推广-百度搜索推广".
	PaidPrefix = "百度推广"
)

var (
	paidPattern   = regexp.MustCompile(`百度搜索推广|百度信息流推广|百度品牌植入`)
	enginePattern = regexp.MustCompile(`百度自然搜索|百度|Google|搜狗|Yahoo|中国雅虎|搜搜|有道|狗狗搜索|Bing|360搜索|即刻搜索|奇虎搜索|一淘搜索|搜酷|宜搜|UC搜索|好搜|神马搜索|中国搜索|头条|夸克搜索`)
	termPattern   = regexp.MustCompile(`搜索词[:：]([^)）]+)`)
)

var keywordParams = map[string]struct{}{
	"kw": {}, "keyword": {}, "q": {}, "query": {}, "wd": {}, "word": {},
}

// Result is the outcome of Classify.
type Result struct {
	Type         string
	Referrer     string
	ReferrerHost string
	SearchEngine string
	Keyword      string
}

// IsPaid reports whether typ is one of the paid-promotion types.
func IsPaid(typ string) bool {
	return strings.HasPrefix(typ, PaidPrefix)
}

// Classify runs the ordered rule chain over descriptor. The first matching
// rule decides the type; anything unmatched is Other.
func Classify(descriptor, sourceURL string) Result {
	var r Result

	switch {
	case descriptor == Direct:
		r.Type = Direct
	case paidPattern.MatchString(descriptor):
		r.Type = PaidPrefix + "-" + paidPattern.FindString(descriptor)
	case enginePattern.MatchString(descriptor):
		r.Type = SearchEngine
		r.SearchEngine = enginePattern.FindString(descriptor)
	case strings.Contains(descriptor, "bing.com"):
		r.Type = SearchEngine
		r.SearchEngine = "Bing"
	case strings.Contains(descriptor, "http"):
		r.Type = ExternalLink
	case descriptor == CustomSource:
		r.Type = CustomSource
	default:
		r.Type = Other
	}

	if sourceURL != "" {
		r.Referrer = sourceURL
		r.ReferrerHost = urlparse.Host(sourceURL)
	}

	if m := termPattern.FindStringSubmatch(descriptor); m != nil {
		r.Keyword = strings.TrimSpace(urlparse.Unquote(m[1]))
	}
	if r.Keyword == "" && r.Type == SearchEngine {
		r.Keyword = keywordFromURL(sourceURL)
	}
	return r
}

func keywordFromURL(sourceURL string) string {
	for _, kv := range urlparse.ParseQuery(urlparse.RawQuery(sourceURL)) {
		if _, ok := keywordParams[kv.Key]; ok && kv.Value != "" {
			return kv.Value
		}
	}
	return ""
}
