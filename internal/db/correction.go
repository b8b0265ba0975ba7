package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tongjisync/internal/normalize"
)

const (
	// staleAfter is how long a visiting or unknown duration may stay open.
	staleAfter = 3 * time.Hour
	// profileWindow bounds the visitors whose profile is recomputed.
	profileWindow = 48 * time.Hour
)

// CorrectionResult counts the rows each correction step touched.
type CorrectionResult struct {
	EventDurations   int64
	SessionDurations int64
	LastEvents       int64
	SessionEnds      int64
	Profiles         int64
}

type correctionStep struct {
	name  string
	sql   string
	args  func(c cutoffs) []any
	count func(r *CorrectionResult) *int64
}

type cutoffs struct {
	stale   string
	profile string
}

func correctionCutoffs(now time.Time, loc *time.Location) cutoffs {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return cutoffs{
		stale:   local.Add(-staleAfter).Format(normalize.Layout),
		profile: local.Add(-profileWindow).Format(normalize.Layout),
	}
}

var correctionSteps = []correctionStep{
	{
		name: "close stale event durations",
		sql:  `UPDATE events SET duration = 1 WHERE duration IN (?, ?) AND receive_time < ?`,
		args: func(c cutoffs) []any {
			return []any{normalize.DurationVisiting, normalize.DurationUnknown, c.stale}
		},
		count: func(r *CorrectionResult) *int64 { return &r.EventDurations },
	},
	{
		name: "recompute session durations",
		sql: `UPDATE sessions s SET duration = COALESCE((
			SELECT SUM(e.duration) FROM events e WHERE e.session_id = s.session_id AND e.duration > 0
		), 0) WHERE s.duration < 0 AND s.start_time < ?`,
		args:  func(c cutoffs) []any { return []any{c.stale} },
		count: func(r *CorrectionResult) *int64 { return &r.SessionDurations },
	},
	{
		name: "backfill last events",
		sql: `UPDATE sessions s SET last_event_id = (
			SELECT e.event_id FROM events e WHERE e.session_id = s.session_id
			ORDER BY e.unix_timestamp DESC, e.event_id DESC LIMIT 1
		) WHERE (s.last_event_id IS NULL OR s.last_event_id = '') AND s.duration > 0
		AND EXISTS (SELECT 1 FROM events e WHERE e.session_id = s.session_id)`,
		args:  func(cutoffs) []any { return nil },
		count: func(r *CorrectionResult) *int64 { return &r.LastEvents },
	},
	{
		name: "clear stale session ends",
		sql: `UPDATE events e SET is_session_end = FALSE FROM sessions s
		WHERE e.session_id = s.session_id AND e.is_session_end
		AND s.last_event_id <> '' AND e.event_id <> s.last_event_id`,
		args:  func(cutoffs) []any { return nil },
		count: func(r *CorrectionResult) *int64 { return &r.SessionEnds },
	},
	{
		name: "mark session ends",
		sql: `UPDATE events e SET is_session_end = TRUE FROM sessions s
		WHERE e.event_id = s.last_event_id AND NOT e.is_session_end`,
		args:  func(cutoffs) []any { return nil },
		count: func(r *CorrectionResult) *int64 { return &r.SessionEnds },
	},
	{
		name: "most frequent location",
		sql: `UPDATE visitors v SET hf_ip = r.ip, hf_country = r.country, hf_province = r.province, hf_city = r.city
		FROM (
			SELECT visitor_id, ip, country, province, city,
				ROW_NUMBER() OVER (PARTITION BY visitor_id ORDER BY COUNT(*) DESC, MAX(start_time) DESC) AS rn
			FROM sessions GROUP BY visitor_id, ip, country, province, city
		) r
		WHERE v.visitor_id = r.visitor_id AND r.rn = 1 AND v.last_visit_time >= ?`,
		args:  func(c cutoffs) []any { return []any{c.profile} },
		count: func(r *CorrectionResult) *int64 { return &r.Profiles },
	},
	{
		name: "visitor totals",
		sql: `UPDATE visitors v SET frequency = t.frequency, total_duration = t.total_duration,
			total_visit_pages = t.total_visit_pages, updated_at = NOW()
		FROM (
			SELECT visitor_id, COUNT(*) AS frequency, SUM(GREATEST(duration, 0)) AS total_duration,
				SUM(visit_pages) AS total_visit_pages
			FROM sessions GROUP BY visitor_id
		) t
		WHERE v.visitor_id = t.visitor_id AND v.last_visit_time >= ?`,
		args:  func(c cutoffs) []any { return []any{c.profile} },
		count: func(r *CorrectionResult) *int64 { return &r.Profiles },
	},
}

// RunCorrectionOnce repairs records written while visits were still open:
// stale durations, missing last events, session-end flags and the visitor
// profile aggregates. Times are compared in loc.
func RunCorrectionOnce(ctx context.Context, db *gorm.DB, now time.Time, loc *time.Location) (CorrectionResult, error) {
	var res CorrectionResult
	c := correctionCutoffs(now, loc)
	for _, step := range correctionSteps {
		tx := db.WithContext(ctx).Exec(step.sql, step.args(c)...)
		if tx.Error != nil {
			return res, fmt.Errorf("%s: %w", step.name, tx.Error)
		}
		*step.count(&res) += tx.RowsAffected
	}
	return res, nil
}

// StartCorrectionWorker runs the correction at startup and then every
// interval until ctx is done.
func StartCorrectionWorker(ctx context.Context, db *gorm.DB, interval time.Duration, loc *time.Location, log *zap.Logger) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	run := func() {
		res, err := RunCorrectionOnce(ctx, db, time.Now(), loc)
		if err != nil {
			log.Error("correction failed", zap.Error(err))
			return
		}
		log.Info("correction done",
			zap.Int64("event_durations", res.EventDurations),
			zap.Int64("session_durations", res.SessionDurations),
			zap.Int64("last_events", res.LastEvents),
			zap.Int64("session_ends", res.SessionEnds),
			zap.Int64("profiles", res.Profiles),
		)
	}

	go func() {
		run()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
