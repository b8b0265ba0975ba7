// Package tongji talks to the Baidu Tongji open API: OAuth token
// lifecycle, the site list and the realtime visit report.
package tongji

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	defaultOAuthURL  = "http://openapi.baidu.com/oauth/2.0/token"
	defaultAPIURL    = "https://openapi.baidu.com/rest/2.0/tongji"
	defaultDemoURL   = "https://tongji.baidu.com/web5/demo/ajax/post"
	realtimeMetrics  = "area,source,access_page,keyword,searchword,is_ad,visitorId,ip,visit_time,visit_pages,start_time"
	realtimeMethod   = "trend/latest/a"
	realtimeOrder    = "start_time,desc"
	maxPageSize      = 1000
	defaultTimeout   = 30 * time.Second
	tokenExpiryGrace = time.Minute
)

var (
	ErrTokenMissing = errors.New("tongji: no access token and no authorization code")
	ErrAPI          = errors.New("tongji: api error")
)

// Provider returns raw realtime payloads for a site.
type Provider interface {
	Fetch(ctx context.Context, siteID string, pageSize int, visitorID string) (*RawResponse, error)
}

// Token is a persisted OAuth token pair.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore persists the token pair between runs.
type TokenStore interface {
	LoadToken(ctx context.Context) (Token, error)
	SaveToken(ctx context.Context, t Token) error
}

// Doer is satisfied by *fasthttp.Client.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

type Config struct {
	APIKey    string
	SecretKey string
	AuthCode  string
	// Debug fetches from the public demo report and skips OAuth.
	Debug   bool
	Timeout time.Duration

	OAuthURL string
	APIURL   string
	DemoURL  string
}

// Client implements Provider.
type Client struct {
	cfg    Config
	http   Doer
	tokens TokenStore
	log    *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	token Token
}

func NewClient(cfg Config, httpClient Doer, tokens TokenStore, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = defaultOAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.DemoURL == "" {
		cfg.DemoURL = defaultDemoURL
	}
	if httpClient == nil {
		httpClient = &fasthttp.Client{Name: "tongjisync"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, tokens: tokens, log: log, now: time.Now}
}

type apiError struct {
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

func (e apiError) err() error {
	switch {
	case e.Error != "":
		return fmt.Errorf("%w: %s: %s", ErrAPI, e.Error, e.ErrorDesc)
	case e.ErrorCode != 0:
		return fmt.Errorf("%w: %d: %s", ErrAPI, e.ErrorCode, e.ErrorMsg)
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *fasthttp.Request) ([]byte, error) {
	timeout := c.cfg.Timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return nil, err
	}
	body := append([]byte(nil), resp.Body()...)

	var ae apiError
	if json.Unmarshal(body, &ae) == nil {
		if err := ae.err(); err != nil {
			return nil, err
		}
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode())
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, uri string, args map[string]string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range args {
		req.URI().QueryArgs().Add(k, v)
	}
	return c.do(ctx, req)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) grant(ctx context.Context, args map[string]string) error {
	args["client_id"] = c.cfg.APIKey
	args["client_secret"] = c.cfg.SecretKey
	body, err := c.get(ctx, c.cfg.OAuthURL, args)
	if err != nil {
		return fmt.Errorf("%s grant: %w", args["grant_type"], err)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrAPI)
	}

	c.token = Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if c.tokens != nil {
		if err := c.tokens.SaveToken(ctx, c.token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}
	c.log.Info("tongji token refreshed", zap.String("grant", args["grant_type"]), zap.Time("expires_at", c.token.ExpiresAt))
	return nil
}

// accessToken returns a valid access token, running the authorization code
// grant when none is stored and the refresh grant when it has expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.AccessToken == "" && c.tokens != nil {
		t, err := c.tokens.LoadToken(ctx)
		if err != nil {
			return "", fmt.Errorf("load token: %w", err)
		}
		c.token = t
	}

	switch {
	case c.token.AccessToken == "":
		if c.cfg.AuthCode == "" {
			return "", ErrTokenMissing
		}
		if err := c.grant(ctx, map[string]string{
			"grant_type":   "authorization_code",
			"code":         c.cfg.AuthCode,
			"redirect_uri": "oob",
		}); err != nil {
			return "", err
		}
	case !c.now().Add(tokenExpiryGrace).Before(c.token.ExpiresAt):
		if err := c.grant(ctx, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": c.token.RefreshToken,
		}); err != nil {
			return "", err
		}
	}
	return c.token.AccessToken, nil
}

// Site is one entry of the site list.
type Site struct {
	SiteID int64  `json:"site_id"`
	Domain string `json:"domain"`
	Status int    `json:"status"`
}

func (c *Client) SiteList(ctx context.Context) ([]Site, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, c.cfg.APIURL+"/config/getSiteList", map[string]string{"access_token": token})
	if err != nil {
		return nil, fmt.Errorf("site list: %w", err)
	}
	var out struct {
		List []Site `json:"list"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode site list: %w", err)
	}
	return out.List, nil
}

// ClampPageSize bounds n to what the realtime report accepts.
func ClampPageSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// Fetch returns the latest visits of siteID, optionally only visitorID's.
func (c *Client) Fetch(ctx context.Context, siteID string, pageSize int, visitorID string) (*RawResponse, error) {
	pageSize = ClampPageSize(pageSize)

	var (
		body []byte
		err  error
	)
	if c.cfg.Debug {
		body, err = c.fetchDemo(ctx, siteID, pageSize, visitorID)
	} else {
		body, err = c.fetchReport(ctx, siteID, pageSize, visitorID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch site %s: %w", siteID, err)
	}

	var envelope struct {
		Result *struct {
			Items json.RawMessage `json:"items"`
		} `json:"result"`
		Data *struct {
			Items json.RawMessage `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var items json.RawMessage
	switch {
	case envelope.Result != nil:
		items = envelope.Result.Items
	case envelope.Data != nil:
		items = envelope.Data.Items
	default:
		return nil, fmt.Errorf("%w: no items", ErrMalformed)
	}

	r, err := DecodeItems(items)
	if err != nil {
		return nil, err
	}
	r.Body = body
	return r, nil
}

func (c *Client) fetchReport(ctx context.Context, siteID string, pageSize int, visitorID string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.cfg.APIURL+"/report/getData", map[string]string{
		"access_token": token,
		"site_id":      siteID,
		"method":       realtimeMethod,
		"metrics":      realtimeMetrics,
		"order":        realtimeOrder,
		"max_results":  strconv.Itoa(pageSize),
		"visitorId":    visitorID,
	})
}

func (c *Client) fetchDemo(ctx context.Context, siteID string, pageSize int, visitorID string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(c.cfg.DemoURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")

	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Add("siteId", siteID)
	form.Add("order", realtimeOrder)
	form.Add("offset", "0")
	form.Add("pageSize", strconv.Itoa(pageSize))
	form.Add("tab", "visit")
	form.Add("timeSpan", "14")
	form.Add("indicators", realtimeMetrics)
	form.Add("anti", "0")
	form.Add("reportId", "4")
	form.Add("method", realtimeMethod)
	form.Add("queryId", "")
	form.Add("visitorId", visitorID)
	req.SetBody(form.QueryString())

	return c.do(ctx, req)
}
