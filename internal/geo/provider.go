package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/text/encoding/simplifiedchinese"

	"tongjisync/internal/kv"
)

// Lookup is what an external provider knows about an IP. Codes are only set
// for domestic results: ProvinceCode is two digits, CityCode four.
type Lookup struct {
	kv.Location
	ProvinceCode string
	CityCode     string
}

// Provider is an external IP geolocation service.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (Lookup, error)
}

var ErrProviderResponse = errors.New("geo provider: bad response")

// Doer is satisfied by *fasthttp.Client.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

func get(ctx context.Context, c Doer, timeout time.Duration, uri string, args map[string]string) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range args {
		req.URI().QueryArgs().Add(k, v)
	}

	if err := c.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderResponse, resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

// Taobao queries ip.taobao.com.
type Taobao struct {
	Client  Doer
	BaseURL string
	Timeout time.Duration
}

const taobaoURL = "https://ip.taobao.com/outGetIpInfo"

func (t *Taobao) Name() string { return "taobao" }

type taobaoResponse struct {
	Code int `json:"code"`
	Data *struct {
		Country  string `json:"country"`
		Region   string `json:"region"`
		City     string `json:"city"`
		RegionID string `json:"region_id"`
		CityID   string `json:"city_id"`
	} `json:"data"`
}

func (t *Taobao) Lookup(ctx context.Context, ip string) (Lookup, error) {
	base := t.BaseURL
	if base == "" {
		base = taobaoURL
	}
	body, err := get(ctx, t.Client, t.Timeout, base, map[string]string{"ip": ip, "accessKey": "alibaba-inc"})
	if err != nil {
		return Lookup{}, fmt.Errorf("taobao: %w", err)
	}

	var r taobaoResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Lookup{}, fmt.Errorf("taobao: %w: %v", ErrProviderResponse, err)
	}
	if r.Code != 0 || r.Data == nil {
		return Lookup{}, fmt.Errorf("taobao: %w: code %d", ErrProviderResponse, r.Code)
	}

	d := r.Data
	l := Lookup{Location: kv.Location{
		Country:  unknownToEmpty(d.Country),
		Province: unknownToEmpty(d.Region),
		City:     unknownToEmpty(d.City),
	}}
	if l.Country == Country {
		l.ProvinceCode = prefix(d.RegionID, 2)
		l.CityCode = prefix(d.CityID, 4)
	}
	return l, nil
}

// PConline queries whois.pconline.com.cn, which answers in GBK.
type PConline struct {
	Client  Doer
	BaseURL string
	Timeout time.Duration
}

const (
	pconlineURL     = "https://whois.pconline.com.cn/ipJson.jsp"
	pconlineForeign = "999999"
)

var afterGuo = regexp.MustCompile(`国\S+`)

func (p *PConline) Name() string { return "pconline" }

type pconlineResponse struct {
	Pro      string `json:"pro"`
	ProCode  string `json:"proCode"`
	City     string `json:"city"`
	CityCode string `json:"cityCode"`
	Addr     string `json:"addr"`
	Err      string `json:"err"`
}

func (p *PConline) Lookup(ctx context.Context, ip string) (Lookup, error) {
	base := p.BaseURL
	if base == "" {
		base = pconlineURL
	}
	raw, err := get(ctx, p.Client, p.Timeout, base, map[string]string{"ip": ip, "json": "true"})
	if err != nil {
		return Lookup{}, fmt.Errorf("pconline: %w", err)
	}
	body, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return Lookup{}, fmt.Errorf("pconline: decode gbk: %w", err)
	}

	var r pconlineResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Lookup{}, fmt.Errorf("pconline: %w: %v", ErrProviderResponse, err)
	}
	if r.ProCode == "" {
		return Lookup{}, fmt.Errorf("pconline: %w: %s", ErrProviderResponse, r.Err)
	}

	if r.ProCode == pconlineForeign {
		// addr looks like "美国加利福尼亚州 ..."; keep the country only
		country := afterGuo.ReplaceAllString(strings.TrimSpace(r.Addr), "国")
		return Lookup{Location: kv.Location{Country: country}}, nil
	}
	return Lookup{
		Location: kv.Location{
			Country:  Country,
			Province: strings.TrimSpace(r.Pro),
			City:     strings.TrimSpace(r.City),
		},
		ProvinceCode: prefix(r.ProCode, 2),
		CityCode:     prefix(r.CityCode, 4),
	}, nil
}

func unknownToEmpty(s string) string {
	if s == "XX" {
		return ""
	}
	return s
}

func prefix(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
