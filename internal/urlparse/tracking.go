package urlparse

// Tracking is the campaign parameter bundle carried by a landing URL.
type Tracking struct {
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	// hm* are Baidu's shorthand aliases, kept as separate columns.
	HMSR string
	HMPL string
	HMCU string
	HMKW string
	HMCI string

	// Custom holds every configured custom parameter, empty when absent.
	Custom map[string]string
}

// Parser extracts tracking and on-site search parameters using the
// configured custom and search parameter names.
type Parser struct {
	customParams []string
	searchParams []string
	searchSet    map[string]struct{}
}

func NewParser(customParams, searchParams []string) *Parser {
	p := &Parser{
		customParams: append([]string(nil), customParams...),
		searchParams: append([]string(nil), searchParams...),
		searchSet:    make(map[string]struct{}, len(searchParams)),
	}
	for _, s := range searchParams {
		p.searchSet[s] = struct{}{}
	}
	return p
}

// TrackingParams reads utm_* values, falling back to the matching hm* alias
// when the utm key is absent from the query.
func (p *Parser) TrackingParams(rawURL string) Tracking {
	q := firstValues(ParseQuery(RawQuery(rawURL)))

	pick := func(canonical, alias string) string {
		if v, ok := q[canonical]; ok {
			return v
		}
		return q[alias]
	}

	t := Tracking{
		UTMSource:   pick("utm_source", "hmsr"),
		UTMMedium:   pick("utm_medium", "hmpl"),
		UTMCampaign: pick("utm_campaign", "hmcu"),
		UTMTerm:     pick("utm_term", "hmkw"),
		UTMContent:  pick("utm_content", "hmci"),
		HMSR:        q["hmsr"],
		HMPL:        q["hmpl"],
		HMCU:        q["hmcu"],
		HMKW:        q["hmkw"],
		HMCI:        q["hmci"],
		Custom:      make(map[string]string, len(p.customParams)),
	}
	for _, name := range p.customParams {
		t.Custom[name] = q[name]
	}
	return t
}

// OnSiteSearchTerm returns the first non-empty value of an allow-listed
// search parameter, in query-string order.
func (p *Parser) OnSiteSearchTerm(rawURL string) string {
	for _, kv := range ParseQuery(RawQuery(rawURL)) {
		if _, ok := p.searchSet[kv.Key]; ok && kv.Value != "" {
			return kv.Value
		}
	}
	return ""
}

// HasSearchParam reports whether any allow-listed search parameter appears
// in the query string, regardless of its value.
func (p *Parser) HasSearchParam(rawURL string) bool {
	for _, kv := range ParseQuery(RawQuery(rawURL)) {
		if _, ok := p.searchSet[kv.Key]; ok {
			return true
		}
	}
	return false
}
