package middleware

import (
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"tongjisync/internal/metrics"
)

// Instrument counts served requests by matched route. The router must have
// SaveMatchedRoutePath enabled, otherwise every request is "unmatched".
func Instrument(m *metrics.Metrics) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if m == nil {
		return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
			return next
		}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			route, _ := ctx.UserValue(router.MatchedRoutePathParam).(string)
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(route, string(ctx.Method()), ctx.Response.StatusCode(), time.Since(start))
		}
	}
}
