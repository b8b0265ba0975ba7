package clickhouse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tongjisync/internal/record"
)

func TestTable_CreateDDL(t *testing.T) {
	tbl := newTable("events", "event_id", record.Event{}, []string{"bd_vid"})
	ddl := tbl.createDDL()

	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS events ("))
	assert.Contains(t, ddl, "\tevent_id String,\n")
	assert.Contains(t, ddl, "\tduration Int64,\n")
	assert.Contains(t, ddl, "\tis_session_end Bool,\n")
	assert.Contains(t, ddl, "\tenhanced_event_list Array(String),\n")
	assert.Contains(t, ddl, "ENGINE = ReplacingMergeTree(version)")
	assert.Contains(t, ddl, "PARTITION BY toYYYYMM(toDate(date_time))")
	assert.True(t, strings.HasSuffix(ddl, "ORDER BY (event_id)"))
	assert.NotContains(t, ddl, "Custom")
}

func TestTable_VisitorsHaveNoPartition(t *testing.T) {
	ddl := newTable("visitors", "visitor_id", record.Visitor{}, nil).createDDL()
	assert.NotContains(t, ddl, "PARTITION BY")
}

func TestTable_CustomDDL(t *testing.T) {
	tbl := newTable("sessions", "session_id", record.Session{}, []string{"bd_vid", "ip"})
	assert.Equal(t, []string{
		"ALTER TABLE sessions ADD COLUMN IF NOT EXISTS bd_vid String DEFAULT ''",
	}, tbl.customDDL())
}

func TestTable_ValuesAlignWithInsert(t *testing.T) {
	tbl := newTable("events", "event_id", record.Event{}, []string{"bd_vid"})
	e := record.Event{
		EventID:  "p_1",
		Duration: 15,
		Custom:   map[string]string{"bd_vid": "abc"},
	}

	names := tbl.names()
	vals := tbl.values(e.Fields(), 7)
	require.Len(t, vals, len(names))
	assert.True(t, strings.HasPrefix(tbl.insertSQL(), "INSERT INTO events (event_id, session_id"))

	byName := make(map[string]any, len(names))
	for i, n := range names {
		byName[n] = vals[i]
	}
	assert.Equal(t, "p_1", byName["event_id"])
	assert.Equal(t, int64(15), byName["duration"])
	assert.Equal(t, []string{}, byName["enhanced_event_list"])
	assert.Equal(t, "abc", byName["bd_vid"])
	assert.Equal(t, uint64(7), byName["version"])
}

func TestTable_MissingCustomIsEmpty(t *testing.T) {
	tbl := newTable("sessions", "session_id", record.Session{}, []string{"bd_vid"})
	vals := tbl.values(record.Session{SessionID: "s_1"}.Fields(), 1)
	assert.Equal(t, "", vals[len(vals)-2])
}

func TestVisitorVersion(t *testing.T) {
	returning := record.Visitor{FirstVisitTime: record.NoFirstVisit, LastVisitTime: "2024-03-09 10:00:00"}
	first := record.Visitor{FirstVisitTime: "2024-03-01 10:00:00", LastVisitTime: "2024-03-01 10:00:00"}
	later := record.Visitor{FirstVisitTime: record.NoFirstVisit, LastVisitTime: "2024-03-10 10:00:00"}

	assert.Greater(t, visitorVersion(first), visitorVersion(returning))
	assert.Greater(t, visitorVersion(first), visitorVersion(later))
	assert.Greater(t, visitorVersion(later), visitorVersion(returning))
}
