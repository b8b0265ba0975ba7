package handlers

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"

	dbpkg "tongjisync/internal/db"
)

// SessionStore reads stored sessions and visitors.
type SessionStore interface {
	FindSession(ctx context.Context, sessionID string) (map[string]any, []map[string]any, error)
	FindVisitor(ctx context.Context, visitorID string) (*dbpkg.Visitor, error)
}

// SessionDetail returns a stored session with its events under "event_list".
func SessionDetail(store SessionStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := pathParam(ctx, "id")
		if id == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "id required")
			return
		}

		session, events, err := store.FindSession(ctx, id)
		if err != nil {
			if errors.Is(err, dbpkg.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "session not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load session")
			return
		}
		if events == nil {
			events = []map[string]any{}
		}
		session["event_list"] = events
		jsonResponse(ctx, session)
	}
}

func VisitorDetail(store SessionStore) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := pathParam(ctx, "id")
		if id == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "id required")
			return
		}

		v, err := store.FindVisitor(ctx, id)
		if err != nil {
			if errors.Is(err, dbpkg.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "visitor not found")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to load visitor")
			return
		}

		jsonResponse(ctx, map[string]any{
			"visitor_id":                v.VisitorID,
			"first_visit_time":          v.FirstVisitTime,
			"last_visit_time":           v.LastVisitTime,
			"first_landing_page":        v.FirstLandingPage,
			"first_referrer":            v.FirstReferrer,
			"first_referrer_host":       v.FirstReferrerHost,
			"first_search_engine":       v.FirstSearchEngine,
			"first_search_keyword":      v.FirstSearchKeyword,
			"first_traffic_source_type": v.FirstTrafficSourceType,
			"utm_campaign":              v.UTMCampaign,
			"utm_content":               v.UTMContent,
			"utm_medium":                v.UTMMedium,
			"utm_source":                v.UTMSource,
			"utm_term":                  v.UTMTerm,
			"hf_ip":                     v.HfIP,
			"hf_country":                v.HfCountry,
			"hf_province":               v.HfProvince,
			"hf_city":                   v.HfCity,
			"frequency":                 v.Frequency,
			"total_duration":            v.TotalDuration,
			"total_visit_pages":         v.TotalVisitPages,
		})
	}
}
