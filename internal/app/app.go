// Package app wires the record engine from configuration. The server and
// the CLI share it.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tongjisync/internal/assembler"
	"tongjisync/internal/channel"
	"tongjisync/internal/config"
	"tongjisync/internal/geo"
	"tongjisync/internal/kv"
	"tongjisync/internal/metrics"
	"tongjisync/internal/normalize"
	"tongjisync/internal/refdata"
	"tongjisync/internal/tongji"
	"tongjisync/internal/urlparse"
)

const kvGCInterval = 10 * time.Minute

// Engine owns the assembler and the stores behind it.
type Engine struct {
	Assembler *assembler.Assembler
	HTTP      *fasthttp.Client

	kv  *kv.Store
	ref *refdata.DB
}

// NewEngine opens the key-value store and the reference database and builds
// the assembler. An unreachable reference database disables the local
// division tier and the category lookup; it is not fatal.
func NewEngine(ctx context.Context, cfg *config.Config, dims *config.Dimensions, m *metrics.Metrics, log *zap.Logger) (*Engine, error) {
	store, err := kv.Open(cfg.CacheDir, log)
	if err != nil {
		return nil, err
	}
	store.StartGC(ctx, kvGCInterval)

	e := &Engine{
		kv:   store,
		HTTP: &fasthttp.Client{Name: "tongjisync", MaxIdleConnDuration: time.Minute},
	}

	var (
		divisions geo.Divisions
		lookup    channel.CategoryLookup
	)
	ref, err := refdata.Open(cfg.ReferenceDSN, log)
	if err != nil {
		log.Warn("reference db unavailable, local geo tier and source categories disabled", zap.Error(err))
	} else {
		if err := ref.EnsureSchema(ctx); err != nil {
			log.Warn("reference schema not ensured", zap.Error(err))
		}
		e.ref = ref
		divisions = ref
		lookup = ref
	}

	opts := []geo.Option{
		geo.WithProviders(
			&geo.Taobao{Client: e.HTTP, Timeout: cfg.GeoTimeout},
			&geo.PConline{Client: e.HTTP, Timeout: cfg.GeoTimeout},
		),
		geo.WithMetrics(m),
		geo.WithLogger(log.Named("geo")),
	}
	if cfg.GeoRate > 0 {
		opts = append(opts, geo.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.GeoRate), 1)))
	}
	resolver := geo.NewResolver(divisions, kv.NewGeoCache(store), opts...)

	e.Assembler = assembler.New(assembler.Deps{
		Times:       normalize.NewNormalizer(cfg.Location(), time.Now),
		Geo:         resolver,
		Params:      urlparse.NewParser(dims.CustomTrackingParams, dims.OnsiteSearchParams),
		Channels:    channel.NewClassifier(lookup, dims.TrafficChannelGroups, log.Named("channel")),
		FirstVisits: kv.NewFirstVisitStore(store),
		Log:         log.Named("assembler"),
	})
	return e, nil
}

// NewTongjiClient builds the realtime report client. tokens may be nil, in
// which case tokens live only in memory.
func (e *Engine) NewTongjiClient(cfg *config.Config, tokens tongji.TokenStore, log *zap.Logger) *tongji.Client {
	return tongji.NewClient(tongji.Config{
		APIKey:    cfg.TongjiAPIKey,
		SecretKey: cfg.TongjiSecretKey,
		AuthCode:  cfg.TongjiAuthCode,
		Debug:     cfg.TongjiDebug,
	}, e.HTTP, tokens, log.Named("tongji"))
}

func (e *Engine) Close() error {
	var errs []error
	if e.ref != nil {
		errs = append(errs, e.ref.Close())
	}
	errs = append(errs, e.kv.Close())
	return errors.Join(errs...)
}
