// Package ingest runs site syncs: fetch the realtime report, archive it,
// assemble records and upsert them into the configured sink.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tongjisync/internal/assembler"
	"tongjisync/internal/metrics"
	"tongjisync/internal/record"
	"tongjisync/internal/tongji"
)

// Sink is implemented by the Postgres and ClickHouse sinks.
type Sink interface {
	Upsert(ctx context.Context, records []record.Record) error
}

// ArchiveFunc stores a fetched response body under a run.
type ArchiveFunc func(ctx context.Context, siteID, runID string, body []byte) error

// ActiveVisitorsFunc lists the visitors of a site whose visits were still
// open at the last sync.
type ActiveVisitorsFunc func(ctx context.Context, siteID string, limit int) ([]string, error)

type Options struct {
	Provider  tongji.Provider
	Assembler *assembler.Assembler
	Sink      Sink
	// Archive and ActiveVisitors are optional.
	Archive        ArchiveFunc
	ActiveVisitors ActiveVisitorsFunc
	Metrics        *metrics.Metrics
	Log            *zap.Logger

	PageSize    int
	RepollLimit int
}

type Service struct {
	provider  tongji.Provider
	assembler *assembler.Assembler
	sink      Sink
	archive   ArchiveFunc
	active    ActiveVisitorsFunc
	metrics   *metrics.Metrics
	log       *zap.Logger

	pageSize    int
	repollLimit int

	inflight singleflight.Group
}

func NewService(o Options) *Service {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Assembler == nil {
		o.Assembler = assembler.New(assembler.Deps{Log: o.Log})
	}
	return &Service{
		provider:    o.Provider,
		assembler:   o.Assembler,
		sink:        o.Sink,
		archive:     o.Archive,
		active:      o.ActiveVisitors,
		metrics:     o.Metrics,
		log:         o.Log,
		pageSize:    tongji.ClampPageSize(o.PageSize),
		repollLimit: o.RepollLimit,
	}
}

// Result summarises one sync run.
type Result struct {
	RunID    string `json:"run_id"`
	SiteID   string `json:"site_id"`
	Fetches  int    `json:"fetches"`
	Records  int    `json:"records"`
	Events   int    `json:"events"`
	Skipped  int    `json:"skipped"`
	Repolled int    `json:"repolled"`
}

// SyncSite re-polls open visits and then fetches the latest page of visits.
// Failed re-polls are logged and do not fail the run. Concurrent calls for
// the same site share one run.
func (s *Service) SyncSite(ctx context.Context, siteID string) (Result, error) {
	v, err, _ := s.inflight.Do(siteID, func() (any, error) {
		return s.syncSite(ctx, siteID)
	})
	return v.(Result), err
}

func (s *Service) syncSite(ctx context.Context, siteID string) (Result, error) {
	res := Result{RunID: uuid.NewString(), SiteID: siteID}
	log := s.log.With(zap.String("site_id", siteID), zap.String("run_id", res.RunID))
	start := time.Now()
	defer func() { s.metrics.SyncDuration(siteID, time.Since(start)) }()

	if s.active != nil && s.repollLimit > 0 {
		ids, err := s.active(ctx, siteID, s.repollLimit)
		if err != nil {
			log.Warn("active visitor lookup failed", zap.Error(err))
		}
		for _, id := range ids {
			if err := s.fetchOnce(ctx, log, &res, id); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("re-poll failed", zap.String("visitor_id", id), zap.Error(err))
				continue
			}
			res.Repolled++
		}
	}

	if err := s.fetchOnce(ctx, log, &res, ""); err != nil {
		return res, err
	}
	log.Info("sync done",
		zap.Int("records", res.Records),
		zap.Int("events", res.Events),
		zap.Int("skipped", res.Skipped),
		zap.Int("repolled", res.Repolled),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func (s *Service) fetchOnce(ctx context.Context, log *zap.Logger, res *Result, visitorID string) error {
	raw, err := s.provider.Fetch(ctx, res.SiteID, s.pageSize, visitorID)
	if err != nil {
		return err
	}
	res.Fetches++

	if s.archive != nil && len(raw.Body) > 0 {
		if err := s.archive(ctx, res.SiteID, res.RunID, raw.Body); err != nil {
			log.Warn("raw payload not archived", zap.Error(err))
		}
	}

	batch, err := s.assembler.Assemble(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("assemble: %w", err)
	}

	for range batch.Skipped {
		s.metrics.Visit(res.SiteID, "skipped")
	}
	res.Skipped += len(batch.Skipped)
	if len(batch.Records) == 0 {
		return nil
	}
	StampSite(batch.Records, res.SiteID)

	if err := s.sink.Upsert(ctx, batch.Records); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	for _, r := range batch.Records {
		s.metrics.Visit(res.SiteID, "assembled")
		s.metrics.Events(res.SiteID, len(r.Events))
		res.Events += len(r.Events)
	}
	res.Records += len(batch.Records)
	return nil
}

// StampSite sets the site id on every session and event of records.
func StampSite(records []record.Record, siteID string) {
	for i := range records {
		records[i].Session.SiteID = siteID
		for j := range records[i].Events {
			records[i].Events[j].SiteID = siteID
		}
	}
}
