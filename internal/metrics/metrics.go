// Package metrics holds the Prometheus collectors of the sync pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tongjisync"

type Metrics struct {
	visits         *prometheus.CounterVec
	events         *prometheus.CounterVec
	geoResolutions *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	sinkUpserts    *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		visits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "visits_total",
				Help:      "Visits processed, by site and outcome (assembled, skipped).",
			},
			[]string{"site", "outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Page-view events assembled.",
			},
			[]string{"site"},
		),
		geoResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_resolutions_total",
				Help:      "Geo resolutions by answering tier and status.",
			},
			[]string{"tier", "status"},
		),
		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_provider_errors_total",
				Help:      "Failed calls to external geolocation providers.",
			},
			[]string{"provider"},
		),
		sinkUpserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_upserts_total",
				Help:      "Rows upserted into a sink, by entity.",
			},
			[]string{"sink", "entity"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Wall time of one site sync.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"site"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of served HTTP requests.",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of served HTTP request durations in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"route", "method"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.visits, m.events, m.geoResolutions, m.providerErrors, m.sinkUpserts, m.syncDuration,
			m.httpRequests, m.httpDuration,
		)
	}
	return m
}

func (m *Metrics) Visit(site, outcome string) {
	if m == nil {
		return
	}
	m.visits.WithLabelValues(site, outcome).Inc()
}

func (m *Metrics) Events(site string, n int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(site).Add(float64(n))
}

func (m *Metrics) GeoResolution(tier, status string) {
	if m == nil {
		return
	}
	m.geoResolutions.WithLabelValues(tier, status).Inc()
}

func (m *Metrics) GeoProviderError(provider string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider).Inc()
}

func (m *Metrics) SinkUpserts(sink, entity string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.sinkUpserts.WithLabelValues(sink, entity).Add(float64(n))
}

func (m *Metrics) SyncDuration(site string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.WithLabelValues(site).Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
