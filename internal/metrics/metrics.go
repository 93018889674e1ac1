// Package metrics exposes the Prometheus instrumentation the listener,
// zone indices, and query engine update as they run, grounded on the
// teacher's internal/metrics package (promauto-registered counters,
// gauges, and histograms scraped via promhttp.Handler), trimmed down
// from the teacher's log-shipping metric set to the ingestion/query
// concerns this database actually has.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracedb_events_ingested_total",
		Help: "Total events accepted by traceEvent, including INTERNAL and SCOPE_LEAVE.",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracedb_batch_duration_seconds",
		Help:    "Wall-clock duration of one beginEventBatch..endEventBatch cycle.",
		Buckets: prometheus.DefBuckets,
	})

	BatchEventCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracedb_batch_event_count",
		Help:    "Number of events fanned out per batch.",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracedb_query_duration_seconds",
		Help:    "query() evaluation duration by classified kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	QueryResultCount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracedb_query_result_count",
		Help:    "Number of nodes returned per query by classified kind.",
		Buckets: []float64{0, 1, 10, 100, 1000, 10000},
	}, []string{"kind"})

	ZoneCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracedb_zone_count",
		Help: "Number of zone indices currently held by the listener.",
	})

	OpenScopeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracedb_open_scope_count",
		Help: "Sum of OpenScopeCount across every zone index.",
	})

	FlowCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracedb_flow_count",
		Help: "Number of flows tracked by the flow tracker.",
	})

	SourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracedb_source_errors_total",
		Help: "Count of SOURCE_ERROR notifications emitted by the listener, by zone.",
	}, []string{"zone"})

	ZoneRebuildWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracedb_zone_rebuild_warnings_total",
		Help: "Count of zone index dirty rebuilds that exceeded RebuildWarnThreshold.",
	})
)

// Handler returns the promhttp handler the HTTP query API mounts at
// /metrics, following the teacher's internal/metrics.StartMetricsServer
// wiring. The HTTP query API mounts it on its own mux, and the app
// also serves it from a dedicated metrics server.
func Handler() http.Handler { return promhttp.Handler() }
