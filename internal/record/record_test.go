package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionFields_MergesCustomWithoutShadowing(t *testing.T) {
	s := Session{
		SessionID: "s_1",
		Duration:  30,
		Custom:    map[string]string{"bd_vid": "42", "session_id": "evil"},
	}

	f := s.Fields()

	assert.Equal(t, "s_1", f["session_id"])
	assert.Equal(t, 30, f["duration"])
	assert.Equal(t, "42", f["bd_vid"])
	_, hasCustom := f["Custom"]
	assert.False(t, hasCustom)
}

func TestEventJSON_IsFlat(t *testing.T) {
	e := Event{
		EventID:        "p_1",
		IsSessionStart: true,
		EnhancedEvents: []string{"page_view", "session_start"},
		Custom:         map[string]string{"ch": "wx"},
	}

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "p_1", m["event_id"])
	assert.Equal(t, true, m["is_session_start"])
	assert.Equal(t, "wx", m["ch"])
	assert.Equal(t, []any{"page_view", "session_start"}, m["enhanced_event_list"])
}

func TestRecordJSON(t *testing.T) {
	r := Record{
		Visitor: Visitor{VisitorID: "v1", FirstVisitTime: NoFirstVisit},
		Session: Session{SessionID: "s_1"},
		Events:  []Event{{EventID: "p_1"}},
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]map[string]any
	_ = json.Unmarshal(b, &m)
	assert.Contains(t, string(b), `"event_list":[{`)
	assert.Equal(t, "1970-01-01 00:00:01", m["visitor"]["first_visit_time"])
	assert.Equal(t, "s_1", m["session"]["session_id"])
}

func TestColumns(t *testing.T) {
	cols := Columns(Visitor{})
	assert.Equal(t, "visitor_id", cols[0])
	assert.Len(t, cols, 14)
	assert.NotContains(t, Columns(Session{}), "Custom")
	assert.Contains(t, Columns(Event{}), "enhanced_event_list")
}
