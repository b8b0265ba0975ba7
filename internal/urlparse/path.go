package urlparse

import (
	"net"
	"strings"
)

// ParsePath returns the first path segment of rawURL (query and fragment
// stripped, prefixed with "/") and the full path. Both default to "/".
//
//	ParsePath("https://a.com/foo/bar?x=1") // "/foo", "/foo/bar"
//	ParsePath("https://a.com")             // "/", "/"
func ParsePath(rawURL string) (path, fullPath string) {
	segments := strings.SplitN(rawURL, "/", 5)
	if len(segments) < 4 {
		return "/", "/"
	}
	first := segments[3]
	if i := strings.IndexAny(first, "?#%&"); i >= 0 {
		first = first[:i]
	}

	fullPath = split(rawURL).path
	if fullPath == "" {
		fullPath = "/"
	}
	return "/" + first, fullPath
}

var genericTLDs = map[string]struct{}{
	"com": {}, "net": {}, "org": {}, "gov": {}, "edu": {},
}

var countryTLDs = toSet(strings.Fields(`
	ac ad ae af ag ai al am ao aq ar as at au aw ax az ba bb bd be bf bg bh
	bi bj bm bn bo br bs bt bw by bz ca cc cd cf cg ch ci ck cl cm cn co cr
	cu cv cw cx cy cz de dj dk dm do dz ec ee eg er es et eu fi fj fk fm fo
	fr ga gd ge gf gg gh gi gl gm gn gp gq gr gs gt gu gw gy hk hm hn hr ht
	hu id ie il im in io iq ir is it je jm jo jp ke kg kh ki km kn kp kr kw
	ky kz la lb lc li lk lr ls lt lu lv ly ma mc md me mg mh mk ml mm mn mo
	mp mq mr ms mt mu mv mw mx my mz na nc ne nf ng ni nl no np nr nu nz om
	pa pe pf pg ph pk pl pm pn pr ps pt pw py qa re ro rs ru rw sa sb sc sd
	se sg sh si sk sl sm sn so sr ss st su sv sx sy sz tc td tf tg th tj tk
	tl tm tn to tr tt tv tw tz ua ug uk us uy uz va vc ve vg vi vn vu wf ws
	ye yt za zm zw bl bq bv eh gb mf sj um`))

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

// SLD returns the registrable domain of host. A "<generic>.<ccTLD>" ending
// such as com.cn counts as one suffix.
//
//	SLD("book.douban.com")  // "douban.com"
//	SLD("www.sina.com.cn")  // "sina.com.cn"
func SLD(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}

	labels := strings.Split(host, ".")
	n := len(labels)
	if n >= 3 {
		_, cc := countryTLDs[labels[n-1]]
		_, generic := genericTLDs[labels[n-2]]
		if cc && generic {
			return strings.Join(labels[n-3:], ".")
		}
	}
	if n >= 2 {
		return strings.Join(labels[n-2:], ".")
	}
	return host
}
