package middleware

import (
	"testing"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	httpctx "tongjisync/internal/http/ctx"
	"tongjisync/internal/metrics"
)

func ok(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func TestBearerAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled", "", "Bearer secret", fasthttp.StatusForbidden},
		{"missing header", "secret", "", fasthttp.StatusUnauthorized},
		{"wrong scheme", "secret", "Basic secret", fasthttp.StatusUnauthorized},
		{"empty token", "secret", "Bearer  ", fasthttp.StatusUnauthorized},
		{"wrong token", "secret", "Bearer nope", fasthttp.StatusUnauthorized},
		{"valid", "secret", "Bearer secret", fasthttp.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &fasthttp.RequestCtx{}
			if tt.header != "" {
				ctx.Request.Header.Set("Authorization", tt.header)
			}
			BearerAuth(tt.token)(ok)(ctx)
			assert.Equal(t, tt.want, ctx.Response.StatusCode())
		})
	}
}

func TestRequestID(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	RequestID(ok)(ctx)
	id, found := httpctx.RequestIDFromCtx(ctx)
	assert.True(t, found)
	assert.Len(t, id, 36)
	assert.Equal(t, id, string(ctx.Response.Header.Peek("X-Request-ID")))

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "abc")
	RequestID(ok)(ctx)
	id, _ = httpctx.RequestIDFromCtx(ctx)
	assert.Equal(t, "abc", id)
}

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := router.New()
	r.SaveMatchedRoutePath = true
	r.GET("/v1/sessions/{id}", ok)
	h := Instrument(m)(r.Handler)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/v1/sessions/s_1")
	h(ctx)

	ctx = &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod("GET")
	ctx.Request.SetRequestURI("/nowhere")
	h(ctx)

	n, err := testutil.GatherAndCount(reg, "tongjisync_http_requests_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInstrument_NilMetrics(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	Instrument(nil)(ok)(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
}
