// Package clickhouse stores assembled records in ReplacingMergeTree tables.
// Re-ingesting a record inserts a newer version of the same key; reads use
// FINAL to see one row per key.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"tongjisync/internal/metrics"
	"tongjisync/internal/normalize"
	"tongjisync/internal/record"
)

const sinkName = "clickhouse"

// firstTouch ranks visitor snapshots that carry acquisition above returning
// ones, so merges keep the first-touch row.
const firstTouch = uint64(1) << 62

// Sink implements the record sink on ClickHouse.
type Sink struct {
	conn     driver.Conn
	metrics  *metrics.Metrics
	log      *zap.Logger
	visitors table
	sessions table
	events   table
	now      func() time.Time
}

func NewSink(conn driver.Conn, customParams []string, m *metrics.Metrics, log *zap.Logger) *Sink {
	return &Sink{
		conn:     conn,
		metrics:  m,
		log:      log,
		visitors: newTable("visitors", "visitor_id", record.Visitor{}, nil),
		sessions: newTable("sessions", "session_id", record.Session{}, customParams),
		events:   newTable("events", "event_id", record.Event{}, customParams),
		now:      time.Now,
	}
}

// InitSchema creates the tables and the custom tracking columns.
func (s *Sink) InitSchema(ctx context.Context) error {
	for _, t := range []table{s.visitors, s.sessions, s.events} {
		if err := s.conn.Exec(ctx, t.createDDL()); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
		for _, ddl := range t.customDDL() {
			if err := s.conn.Exec(ctx, ddl); err != nil {
				return fmt.Errorf("failed to alter %s table: %w", t.name, err)
			}
		}
	}
	s.log.Info("ClickHouse schema initialized")
	return nil
}

// Upsert inserts one batch per table.
func (s *Sink) Upsert(ctx context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	version := uint64(s.now().UnixNano())

	var visitors, sessions, events [][]any
	for _, r := range records {
		visitors = append(visitors, s.visitors.values(r.Visitor.Fields(), visitorVersion(r.Visitor)))
		sessions = append(sessions, s.sessions.values(r.Session.Fields(), version))
		for _, e := range r.Events {
			events = append(events, s.events.values(e.Fields(), version))
		}
	}

	for _, b := range []struct {
		t      table
		entity string
		rows   [][]any
	}{
		{s.visitors, "visitor", visitors},
		{s.sessions, "session", sessions},
		{s.events, "event", events},
	} {
		if len(b.rows) == 0 {
			continue
		}
		if err := s.send(ctx, b.t, b.rows); err != nil {
			return err
		}
		s.metrics.SinkUpserts(sinkName, b.entity, len(b.rows))
	}
	return nil
}

func (s *Sink) send(ctx context.Context, t table, rows [][]any) error {
	batch, err := s.conn.PrepareBatch(ctx, t.insertSQL())
	if err != nil {
		return fmt.Errorf("failed to prepare %s batch: %w", t.name, err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append to %s batch: %w", t.name, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send %s batch: %w", t.name, err)
	}
	return nil
}

// visitorVersion orders snapshots by first-touch, then by last visit.
func visitorVersion(v record.Visitor) uint64 {
	var version uint64
	if t, err := time.Parse(normalize.Layout, v.LastVisitTime); err == nil && t.Unix() > 0 {
		version = uint64(t.Unix())
	}
	if v.FirstVisitTime != record.NoFirstVisit && v.FirstVisitTime != "" {
		version |= firstTouch
	}
	return version
}
