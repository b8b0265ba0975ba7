package handlers

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"tongjisync/internal/ingest"
	"tongjisync/internal/tongji"
)

const syncTimeout = 2 * time.Minute

var siteIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

// Syncer is satisfied by *ingest.Service.
type Syncer interface {
	SyncSite(ctx context.Context, siteID string) (ingest.Result, error)
}

// SyncHandler runs one sync of the site named in the path and reports the
// counts.
func SyncHandler(svc Syncer, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		site := pathParam(ctx, "site")
		if !siteIDPattern.MatchString(site) {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid site id")
			return
		}

		runCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		res, err := svc.SyncSite(runCtx, site)
		if err != nil {
			log.Error("sync failed", zap.String("site_id", site), zap.String("run_id", res.RunID), zap.Error(err))
			switch {
			case errors.Is(err, tongji.ErrTokenMissing):
				errResponse(ctx, fasthttp.StatusServiceUnavailable, "tongji credentials are not configured")
			case errors.Is(err, tongji.ErrAPI), errors.Is(err, tongji.ErrMalformed):
				errResponse(ctx, fasthttp.StatusBadGateway, "upstream report failed")
			case errors.Is(err, context.DeadlineExceeded):
				errResponse(ctx, fasthttp.StatusGatewayTimeout, "sync timed out")
			default:
				errResponse(ctx, fasthttp.StatusInternalServerError, "sync failed")
			}
			return
		}

		jsonResponse(ctx, res)
	}
}
