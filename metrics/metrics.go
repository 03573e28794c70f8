// Package metrics wires the ingest/query/store operation counters and
// latencies onto github.com/prometheus/client_golang in place of a
// hand-rolled tracker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/histogram this server exposes. The zero
// value is not usable; construct with New.
type Metrics struct {
	IngestRequests  *prometheus.CounterVec
	RecordsIngested *prometheus.CounterVec
	DuplicatesHint  *prometheus.CounterVec
	QueryRequests   *prometheus.CounterVec
	QueryLatency    *prometheus.HistogramVec
	IngestLatency   *prometheus.HistogramVec
}

// New registers every metric against reg and returns the handle used
// to record observations. Passing prometheus.NewRegistry() rather than
// the global DefaultRegisterer keeps repeated New calls in tests from
// colliding on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbackcdx",
			Name:      "ingest_requests_total",
			Help:      "Ingestion requests, by collection and outcome.",
		}, []string{"collection", "outcome"}),
		RecordsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbackcdx",
			Name:      "records_ingested_total",
			Help:      "Captures and aliases committed, by collection.",
		}, []string{"collection"}),
		DuplicatesHint: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbackcdx",
			Name:      "ingest_duplicates_hint_total",
			Help:      "Cuckoo-filter-detected repeat records within a batch (hint only).",
		}, []string{"collection"}),
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbackcdx",
			Name:      "query_requests_total",
			Help:      "Query requests, by collection and outcome.",
		}, []string{"collection", "outcome"}),
		QueryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outbackcdx",
			Name:      "query_latency_seconds",
			Help:      "Time to stream a full query result.",
		}, []string{"collection"}),
		IngestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outbackcdx",
			Name:      "ingest_latency_seconds",
			Help:      "Time to commit one ingestion batch.",
		}, []string{"collection"}),
	}
}

// ObserveIngest records one ingest request's outcome and latency.
func (m *Metrics) ObserveIngest(collection, outcome string, records int, duplicates int, since time.Time) {
	m.IngestRequests.WithLabelValues(collection, outcome).Inc()
	if outcome == "ok" {
		m.RecordsIngested.WithLabelValues(collection).Add(float64(records))
		m.DuplicatesHint.WithLabelValues(collection).Add(float64(duplicates))
	}
	m.IngestLatency.WithLabelValues(collection).Observe(time.Since(since).Seconds())
}

// ObserveQuery records one query request's outcome and latency.
func (m *Metrics) ObserveQuery(collection, outcome string, since time.Time) {
	m.QueryRequests.WithLabelValues(collection, outcome).Inc()
	m.QueryLatency.WithLabelValues(collection).Observe(time.Since(since).Seconds())
}
