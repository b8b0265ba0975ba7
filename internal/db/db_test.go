package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"

	"tongjisync/internal/record"
)

func TestCustomColumnDDL(t *testing.T) {
	ddl, err := customColumnDDL("sessions", "bd_vid")
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE sessions ADD COLUMN IF NOT EXISTS bd_vid VARCHAR(255) NULL", ddl)

	_, err = customColumnDDL("events", "bd_vid; DROP TABLE events")
	assert.Error(t, err)
}

func TestSinkRow_FiltersAndEncodes(t *testing.T) {
	s := &Sink{columns: map[string]map[string]struct{}{
		"events": {"event_id": {}, "enhanced_event_list": {}, "bd_vid": {}},
	}}

	e := record.Event{
		EventID:        "p_1",
		URL:            "https://example.com/",
		EnhancedEvents: []string{"page_view", "session_start"},
		Custom:         map[string]string{"bd_vid": "abc", "unknown": "x"},
	}
	row := s.row("events", e.Fields())

	assert.Len(t, row, 3)
	assert.Equal(t, "p_1", row["event_id"])
	assert.Equal(t, "abc", row["bd_vid"])
	assert.Equal(t, datatypes.JSON(`["page_view","session_start"]`), row["enhanced_event_list"])
}

func TestSinkRow_NilListIsEmptyArray(t *testing.T) {
	s := &Sink{columns: map[string]map[string]struct{}{}}
	row := s.row("events", record.Event{EventID: "p_1"}.Fields())
	assert.Equal(t, datatypes.JSON(`[]`), row["enhanced_event_list"])
}

func TestDedupe_KeepsLastAtFirstPosition(t *testing.T) {
	rows := []map[string]any{
		{"session_id": "a", "duration": 1},
		{"session_id": "b", "duration": 2},
		{"session_id": "a", "duration": 3},
	}
	out := dedupe(rows, "session_id")

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0]["session_id"])
	assert.Equal(t, 3, out[0]["duration"])
	assert.Equal(t, "b", out[1]["session_id"])
	assert.Len(t, rows, 3)
}

func TestMergeVisitors(t *testing.T) {
	returning := record.Visitor{
		VisitorID:      "v1",
		FirstVisitTime: record.NoFirstVisit,
		LastVisitTime:  "2024-03-09 10:00:00",
	}
	first := record.Visitor{
		VisitorID:         "v1",
		FirstVisitTime:    "2024-03-08 09:00:00",
		LastVisitTime:     "2024-03-08 09:00:00",
		FirstLandingPage:  "https://example.com/a",
		FirstReferrerHost: "www.baidu.com",
	}
	other := record.Visitor{VisitorID: "v2", FirstVisitTime: record.NoFirstVisit, LastVisitTime: "2024-03-09 11:00:00"}

	out := mergeVisitors([]record.Visitor{returning, other, first})

	require.Len(t, out, 2)
	assert.Equal(t, "v1", out[0].VisitorID)
	assert.Equal(t, "2024-03-08 09:00:00", out[0].FirstVisitTime)
	assert.Equal(t, "https://example.com/a", out[0].FirstLandingPage)
	assert.Equal(t, "2024-03-09 10:00:00", out[0].LastVisitTime)
	assert.Equal(t, other, out[1])
}

func TestVisitorConflict(t *testing.T) {
	oc := visitorConflict()

	require.Len(t, oc.Columns, 1)
	assert.Equal(t, "visitor_id", oc.Columns[0].Name)

	var cols []string
	for _, a := range oc.DoUpdates {
		cols = append(cols, a.Column.Name)
	}
	assert.Contains(t, cols, "last_visit_time")
	assert.Contains(t, cols, "first_visit_time")
	assert.Contains(t, cols, "utm_source")
	assert.NotContains(t, cols, "visitor_id")
	assert.NotContains(t, cols, "hf_ip")

	expr, ok := oc.DoUpdates[1].Value.(clause.Expr)
	require.True(t, ok)
	assert.Contains(t, expr.SQL, "CASE WHEN excluded.first_visit_time = ?")
	assert.Equal(t, []interface{}{record.NoFirstVisit}, expr.Vars)
}

func TestReplaceConflict(t *testing.T) {
	oc := replaceConflict("event_id", []map[string]any{{"event_id": "p", "duration": 1, "url": "u"}})

	var cols []string
	for _, a := range oc.DoUpdates {
		cols = append(cols, a.Column.Name)
	}
	assert.ElementsMatch(t, []string{"duration", "url"}, cols)
	assert.Equal(t, "event_id", oc.Columns[0].Name)
}

func TestCorrectionCutoffs(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	now := time.Date(2024, 3, 9, 4, 0, 0, 0, time.UTC)

	c := correctionCutoffs(now, loc)
	assert.Equal(t, "2024-03-09 09:00:00", c.stale)
	assert.Equal(t, "2024-03-07 12:00:00", c.profile)

	c = correctionCutoffs(now, nil)
	assert.Equal(t, "2024-03-09 01:00:00", c.stale)
}

func TestCorrectionSteps_Bound(t *testing.T) {
	c := cutoffs{stale: "s", profile: "p"}
	for _, step := range correctionSteps {
		var res CorrectionResult
		assert.NotNil(t, step.count(&res), step.name)
		assert.NotEmpty(t, step.sql, step.name)
		args := step.args(c)
		// every placeholder has an argument
		want := 0
		for _, r := range step.sql {
			if r == '?' {
				want++
			}
		}
		assert.Len(t, args, want, step.name)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, expiry(now, 0))
	got := expiry(now, 30)
	require.NotNil(t, got)
	assert.Equal(t, now.Add(30*24*time.Hour), *got)
}
