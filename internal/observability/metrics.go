package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest service.
type Metrics struct {
	MessagesFetched prometheus.Counter
	RecordsDecoded  *prometheus.CounterVec // label: station
	DecodeErrors    *prometheus.CounterVec // label: station
	RowsWritten     *prometheus.CounterVec // labels: station, tier
	SyncErrors      *prometheus.CounterVec // labels: station, tier, reason={reconcile,store,fetch}
	RowsPublished   prometheus.Counter

	CycleDuration prometheus.Histogram
	IngestRunning prometheus.Gauge
}

// NewMetrics creates and registers all ingest metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesFetched,
		m.RecordsDecoded,
		m.DecodeErrors,
		m.RowsWritten,
		m.SyncErrors,
		m.RowsPublished,
		m.CycleDuration,
		m.IngestRunning,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so parallel tests
// avoid "already registered" panics on the default registry.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "messages_fetched_total",
			Help:      "Total messages fetched from the satellite relay.",
		}),
		RecordsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "records_decoded_total",
			Help:      "Decoded station records by station.",
		}, []string{"station"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "decode_errors_total",
			Help:      "Messages or sub-readings dropped during decoding.",
		}, []string{"station"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "rows_written_total",
			Help:      "Rows appended to the store by station and tier.",
		}, []string{"station", "tier"}),
		SyncErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "sync_errors_total",
			Help:      "Aborted sync attempts by station, tier, and reason.",
		}, []string{"station", "tier", "reason"}),
		RowsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wx_ingest",
			Name:      "rows_published_total",
			Help:      "Clean rows published to the Kafka sink topic.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wx_ingest",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one full poll cycle across all stations.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wx_ingest",
			Name:      "running",
			Help:      "1 while the poll scheduler is active, 0 after shutdown.",
		}),
	}
}
