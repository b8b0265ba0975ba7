package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Visit("site-1", "assembled")
	m.Visit("site-1", "assembled")
	m.Visit("site-1", "skipped")
	m.Events("site-1", 5)
	m.GeoResolution("cache", "resolved")
	m.GeoProviderError("taobao")
	m.SinkUpserts("postgres", "event", 5)
	m.SinkUpserts("postgres", "visitor", 0)
	m.SyncDuration("site-1", 1500*time.Millisecond)
	m.HTTPRequest("/v1/sessions/{id}", "GET", 404, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.visits.WithLabelValues("site-1", "assembled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.visits.WithLabelValues("site-1", "skipped")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.events.WithLabelValues("site-1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues("taobao")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.sinkUpserts.WithLabelValues("postgres", "event")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/v1/sessions/{id}", "GET", "404")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tongjisync_sync_duration_seconds")
	assert.NotContains(t, names, "tongjisync_sink_upserts_total_visitor")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Visit("s", "assembled")
		m.Events("s", 1)
		m.GeoResolution("none", "failed")
		m.GeoProviderError("pconline")
		m.SinkUpserts("clickhouse", "session", 1)
		m.SyncDuration("s", time.Second)
	})
}
