package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	dbpkg "tongjisync/internal/db"
	"tongjisync/internal/ingest"
	"tongjisync/internal/tongji"
)

// MockSyncer is a mock implementation of Syncer
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncSite(ctx context.Context, siteID string) (ingest.Result, error) {
	args := m.Called(ctx, siteID)
	return args.Get(0).(ingest.Result), args.Error(1)
}

type fakeStore struct {
	sessions map[string]map[string]any
	events   map[string][]map[string]any
	visitors map[string]*dbpkg.Visitor
	err      error
}

func (f *fakeStore) FindSession(_ context.Context, id string) (map[string]any, []map[string]any, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil, dbpkg.ErrNotFound
	}
	return s, f.events[id], nil
}

func (f *fakeStore) FindVisitor(_ context.Context, id string) (*dbpkg.Visitor, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.visitors[id]
	if !ok {
		return nil, dbpkg.ErrNotFound
	}
	return v, nil
}

func newCtx(method, uri string, params map[string]string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	for k, v := range params {
		ctx.SetUserValue(k, v)
	}
	return ctx
}

func TestSyncHandler(t *testing.T) {
	svc := new(MockSyncer)
	svc.On("SyncSite", mock.Anything, "123").Return(ingest.Result{RunID: "r1", SiteID: "123", Records: 2, Events: 3}, nil)

	ctx := newCtx("POST", "/v1/sites/123/sync", map[string]string{"site": "123"})
	SyncHandler(svc, zap.NewNop())(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
	assert.Equal(t, "r1", got["run_id"])
	assert.Equal(t, 2.0, got["records"])
	assert.Equal(t, 3.0, got["events"])
	svc.AssertExpectations(t)
}

func TestSyncHandler_InvalidSite(t *testing.T) {
	svc := new(MockSyncer)
	ctx := newCtx("POST", "/v1/sites/abc/sync", map[string]string{"site": "abc"})
	SyncHandler(svc, zap.NewNop())(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	svc.AssertNotCalled(t, "SyncSite", mock.Anything, mock.Anything)
}

func TestSyncHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"token missing", tongji.ErrTokenMissing, fasthttp.StatusServiceUnavailable},
		{"api error", fmt.Errorf("fetch: %w", tongji.ErrAPI), fasthttp.StatusBadGateway},
		{"malformed", fmt.Errorf("assemble: %w", tongji.ErrMalformed), fasthttp.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, fasthttp.StatusGatewayTimeout},
		{"other", errors.New("db down"), fasthttp.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSyncer)
			svc.On("SyncSite", mock.Anything, "1").Return(ingest.Result{}, tt.err)

			ctx := newCtx("POST", "/v1/sites/1/sync", map[string]string{"site": "1"})
			SyncHandler(svc, zap.NewNop())(ctx)
			assert.Equal(t, tt.want, ctx.Response.StatusCode())
		})
	}
}

func TestSessionDetail(t *testing.T) {
	store := &fakeStore{
		sessions: map[string]map[string]any{"s_1": {"session_id": "s_1", "duration": 69}},
		events:   map[string][]map[string]any{"s_1": {{"event_id": "p_1"}, {"event_id": "p_2"}}},
	}

	ctx := newCtx("GET", "/v1/sessions/s_1", map[string]string{"id": "s_1"})
	SessionDetail(store)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
	assert.Equal(t, "s_1", got["session_id"])
	assert.Len(t, got["event_list"], 2)
}

func TestSessionDetail_Errors(t *testing.T) {
	ctx := newCtx("GET", "/v1/sessions/none", map[string]string{"id": "none"})
	SessionDetail(&fakeStore{})(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())

	ctx = newCtx("GET", "/v1/sessions/x", map[string]string{"id": "x"})
	SessionDetail(&fakeStore{err: errors.New("boom")})(ctx)
	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
}

func TestVisitorDetail(t *testing.T) {
	store := &fakeStore{visitors: map[string]*dbpkg.Visitor{
		"1001": {VisitorID: "1001", FirstLandingPage: "https://shop.example.com/", HfCity: "深圳市", Frequency: 3},
	}}

	ctx := newCtx("GET", "/v1/visitors/1001", map[string]string{"id": "1001"})
	VisitorDetail(store)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var got map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &got))
	assert.Equal(t, "https://shop.example.com/", got["first_landing_page"])
	assert.Equal(t, "深圳市", got["hf_city"])
	assert.Equal(t, 3.0, got["frequency"])

	ctx = newCtx("GET", "/v1/visitors/2", map[string]string{"id": "2"})
	VisitorDetail(store)(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestSiteMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	visits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "visits_total", Help: "v"}, []string{"site"})
	upserts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "upserts_total", Help: "u"}, []string{"sink"})
	reg.MustRegister(visits, upserts)
	visits.WithLabelValues("123").Add(2)
	visits.WithLabelValues("456").Add(5)
	upserts.WithLabelValues("postgres").Inc()

	ctx := newCtx("GET", "/v1/metrics?site=123", nil)
	SiteMetricsHandler(reg)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, `visits_total{site="123"} 2`)
	assert.NotContains(t, body, `site="456"`)
	assert.Contains(t, body, `upserts_total{sink="postgres"} 1`)

	ctx = newCtx("GET", "/v1/metrics", nil)
	SiteMetricsHandler(reg)(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestRequestLogger_PassesThrough(t *testing.T) {
	called := false
	h := RequestLogger(zap.NewNop())(func(ctx *fasthttp.RequestCtx) {
		called = true
		ctx.SetStatusCode(fasthttp.StatusTeapot)
	})
	ctx := newCtx("GET", "/healthz", nil)
	h(ctx)

	assert.True(t, called)
	assert.Equal(t, fasthttp.StatusTeapot, ctx.Response.StatusCode())
}

func TestHealthz(t *testing.T) {
	ctx := newCtx("GET", "/healthz", nil)
	Healthz(ctx)
	assert.Equal(t, "ok", strings.TrimSpace(string(ctx.Response.Body())))
}

func TestExpositionHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "syncs_total", Help: "s"})
	reg.MustRegister(c)
	c.Inc()

	ctx := newCtx("GET", "/metrics", nil)
	ExpositionHandler(reg)(ctx)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "syncs_total 1")
	assert.Equal(t, "no-store", string(ctx.Response.Header.Peek("Cache-Control")))
}
