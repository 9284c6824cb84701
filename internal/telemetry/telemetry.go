package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fixed counter set observed per completed operation plus
// operation latency. Observation never affects the outcome it records.
type Metrics struct {
	registry *prometheus.Registry

	StoreOK       prometheus.Counter
	StoreConflict prometheus.Counter
	StoreFail     prometheus.Counter
	GetOK         prometheus.Counter
	GetNotFound   prometheus.Counter
	GetFail       prometheus.Counter

	OpLatency *prometheus.HistogramVec

	storageReadLatency   prometheus.Histogram
	storageCommitLatency prometheus.Histogram
}

// New builds a Metrics instance backed by its own registry, including Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		StoreOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "store_ok_total",
			Help: "Successful STORE operations",
		}),
		StoreConflict: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "store_conflict_total",
			Help: "STORE operations rejected by if_match",
		}),
		StoreFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "store_fail_total",
			Help: "STORE failures other than conflicts",
		}),
		GetOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "get_ok_total",
			Help: "Successful GET operations",
		}),
		GetNotFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "get_not_found_total",
			Help: "GET operations with no matching record",
		}),
		GetFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keva", Subsystem: "kb", Name: "get_fail_total",
			Help: "GET failures other than not-found",
		}),
		OpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keva", Subsystem: "kb", Name: "op_seconds",
			Help:    "Knowledge store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		storageReadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keva", Subsystem: "storage", Name: "read_seconds",
			Help:    "Pebble point read latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		storageCommitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "keva", Subsystem: "storage", Name: "commit_seconds",
			Help:    "Pebble batch commit latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.StoreOK, m.StoreConflict, m.StoreFail,
		m.GetOK, m.GetNotFound, m.GetFail,
		m.OpLatency,
		m.storageReadLatency, m.storageCommitLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOp records the latency of one completed operation ("store"|"get").
func (m *Metrics) ObserveOp(op string, elapsed time.Duration) {
	m.OpLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRead implements the storage metrics hook.
func (m *Metrics) ObserveRead(elapsed time.Duration, _ int) {
	m.storageReadLatency.Observe(elapsed.Seconds())
}

// ObserveBatchCommit implements the storage metrics hook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int) {
	m.storageCommitLatency.Observe(elapsed.Seconds())
}
