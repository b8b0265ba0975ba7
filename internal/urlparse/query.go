package urlparse

import (
	"net/url"
	"strings"
)

// Param is one query-string pair, kept in the order it appeared.
type Param struct {
	Key   string
	Value string
}

type parts struct {
	host     string
	path     string
	rawQuery string
}

// split decomposes rawURL, falling back to plain string cutting when
// net/url rejects it (bad escapes are common in referrers).
func split(rawURL string) parts {
	if u, err := url.Parse(rawURL); err == nil {
		path := u.RawPath
		if path == "" {
			path = u.EscapedPath()
		}
		return parts{host: u.Host, path: path, rawQuery: u.RawQuery}
	}

	s, _, _ := strings.Cut(rawURL, "#")
	s, query, _ := strings.Cut(s, "?")
	var p parts
	p.rawQuery = query
	if _, rest, ok := strings.Cut(s, "//"); ok {
		host, path, found := strings.Cut(rest, "/")
		p.host = host
		if found {
			p.path = "/" + path
		}
	}
	return p
}

// Host returns the network location of rawURL (host plus optional port).
func Host(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return split(rawURL).host
}

// RawQuery returns the undecoded query string of rawURL.
func RawQuery(rawURL string) string {
	return split(rawURL).rawQuery
}

// ParseQuery splits a raw query string into ordered, decoded pairs.
// Blank values are kept; a key without "=" has an empty value.
func ParseQuery(rawQuery string) []Param {
	var params []Param
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k = Unquote(k)
		if k == "" {
			continue
		}
		params = append(params, Param{Key: k, Value: Unquote(v)})
	}
	return params
}

// firstValues keeps the first value seen for every key.
func firstValues(params []Param) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		if _, ok := m[p.Key]; !ok {
			m[p.Key] = p.Value
		}
	}
	return m
}

// Unquote percent-decodes s with "+" as space. Invalid escapes return s
// unchanged. Bytes that are not UTF-8 (GBK-encoded values) become U+FFFD.
func Unquote(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		s = d
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}
