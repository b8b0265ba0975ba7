package db

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tongjisync/internal/metrics"
	"tongjisync/internal/record"
)

const sinkName = "postgres"

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// visitorAcquisition are the visitor columns only a first visit knows.
var visitorAcquisition = []string{
	"first_visit_time", "first_landing_page", "first_referrer", "first_referrer_host",
	"first_search_engine", "first_search_keyword", "first_traffic_source_type",
	"utm_campaign", "utm_content", "utm_medium", "utm_source", "utm_term",
}

// Sink upserts assembled records into the visitors, sessions and events
// tables. Only columns the tables actually have are written.
type Sink struct {
	db      *gorm.DB
	metrics *metrics.Metrics
	log     *zap.Logger
	columns map[string]map[string]struct{}
}

// NewSink adds a column per custom tracking parameter to sessions and
// events, then snapshots the column sets of all three tables.
func NewSink(ctx context.Context, db *gorm.DB, customParams []string, m *metrics.Metrics, log *zap.Logger) (*Sink, error) {
	s := &Sink{db: db, metrics: m, log: log, columns: make(map[string]map[string]struct{})}
	if err := s.ensureCustomColumns(ctx, customParams); err != nil {
		return nil, err
	}
	for _, table := range []string{"visitors", "sessions", "events"} {
		types, err := db.WithContext(ctx).Migrator().ColumnTypes(table)
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", table, err)
		}
		set := make(map[string]struct{}, len(types))
		for _, ct := range types {
			set[ct.Name()] = struct{}{}
		}
		s.columns[table] = set
	}
	return s, nil
}

func customColumnDDL(table, column string) (string, error) {
	if !identifier.MatchString(column) {
		return "", fmt.Errorf("invalid column name %q", column)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR(255) NULL", table, column), nil
}

func (s *Sink) ensureCustomColumns(ctx context.Context, params []string) error {
	for _, p := range params {
		for _, table := range []string{"sessions", "events"} {
			ddl, err := customColumnDDL(table, p)
			if err != nil {
				return err
			}
			if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, p, err)
			}
		}
	}
	return nil
}

// Upsert writes records in one transaction, keyed by visitor_id,
// session_id and event_id. A returning visitor's row keeps the stored
// acquisition columns.
func (s *Sink) Upsert(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	var (
		visitors []record.Visitor
		sessions []map[string]any
		events   []map[string]any
	)
	for _, r := range records {
		visitors = append(visitors, r.Visitor)
		sessions = append(sessions, s.row("sessions", r.Session.Fields()))
		for _, e := range r.Events {
			events = append(events, s.row("events", e.Fields()))
		}
	}
	visitorRows := make([]map[string]any, 0, len(visitors))
	for _, v := range mergeVisitors(visitors) {
		visitorRows = append(visitorRows, s.row("visitors", v.Fields()))
	}
	sessions = dedupe(sessions, "session_id")
	events = dedupe(events, "event_id")

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table("visitors").Clauses(visitorConflict()).Create(&visitorRows).Error; err != nil {
			return fmt.Errorf("upsert visitors: %w", err)
		}
		if err := tx.Table("sessions").Clauses(replaceConflict("session_id", sessions)).Create(&sessions).Error; err != nil {
			return fmt.Errorf("upsert sessions: %w", err)
		}
		if len(events) > 0 {
			if err := tx.Table("events").Clauses(replaceConflict("event_id", events)).Create(&events).Error; err != nil {
				return fmt.Errorf("upsert events: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.SinkUpserts(sinkName, "visitor", len(visitorRows))
	s.metrics.SinkUpserts(sinkName, "session", len(sessions))
	s.metrics.SinkUpserts(sinkName, "event", len(events))
	s.log.Debug("records upserted",
		zap.Int("visitors", len(visitorRows)),
		zap.Int("sessions", len(sessions)),
		zap.Int("events", len(events)),
	)
	return nil
}

// row keeps the fields table has a column for and converts list values
// to JSON.
func (s *Sink) row(table string, fields map[string]any) map[string]any {
	cols := s.columns[table]
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if cols != nil {
			if _, ok := cols[k]; !ok {
				continue
			}
		}
		if list, ok := v.([]string); ok {
			if list == nil {
				list = []string{}
			}
			b, _ := json.Marshal(list)
			v = datatypes.JSON(b)
		}
		out[k] = v
	}
	return out
}

// dedupe keeps the last row per key, at the position of its first
// occurrence. One INSERT ... ON CONFLICT cannot touch a row twice.
func dedupe(rows []map[string]any, key string) []map[string]any {
	idx := make(map[any]int, len(rows))
	out := rows[:0:0]
	for _, r := range rows {
		if i, ok := idx[r[key]]; ok {
			out[i] = r
			continue
		}
		idx[r[key]] = len(out)
		out = append(out, r)
	}
	return out
}

// mergeVisitors folds repeated visitors of one batch into a single
// snapshot: the earliest known first visit and the latest last visit.
func mergeVisitors(in []record.Visitor) []record.Visitor {
	idx := make(map[string]int, len(in))
	var out []record.Visitor
	for _, v := range in {
		i, ok := idx[v.VisitorID]
		if !ok {
			idx[v.VisitorID] = len(out)
			out = append(out, v)
			continue
		}
		cur := out[i]
		merged := cur
		if v.FirstVisitTime != record.NoFirstVisit &&
			(cur.FirstVisitTime == record.NoFirstVisit || v.FirstVisitTime < cur.FirstVisitTime) {
			merged = v
		}
		merged.LastVisitTime = maxString(cur.LastVisitTime, v.LastVisitTime)
		out[i] = merged
	}
	return out
}

func maxString(a, b string) string {
	if b > a {
		return b
	}
	return a
}

// visitorConflict never lets a returning visit wipe the stored first-touch
// acquisition.
func visitorConflict() clause.OnConflict {
	set := clause.Set{{
		Column: clause.Column{Name: "last_visit_time"},
		Value:  gorm.Expr("GREATEST(visitors.last_visit_time, excluded.last_visit_time)"),
	}}
	for _, col := range visitorAcquisition {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value: gorm.Expr(fmt.Sprintf(
				"CASE WHEN excluded.first_visit_time = ? THEN visitors.%s ELSE excluded.%s END", col, col,
			), record.NoFirstVisit),
		})
	}
	set = append(set, clause.Assignment{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("NOW()")})
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_id"}},
		DoUpdates: set,
	}
}

// replaceConflict overwrites every written column on conflict.
func replaceConflict(key string, rows []map[string]any) clause.OnConflict {
	var cols []string
	if len(rows) > 0 {
		for k := range rows[0] {
			if k != key {
				cols = append(cols, k)
			}
		}
	}
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: key}},
		DoUpdates: clause.AssignmentColumns(cols),
	}
}
