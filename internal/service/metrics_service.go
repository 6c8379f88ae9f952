package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for sync passes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	recordsResolved *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	queueDepth      *prometheus.GaugeVec
	remoteCalls     *prometheus.CounterVec
}

// NewMetricsService registers the sync collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	recordsResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_resolved_total",
		Help: "Reconciled records by outcome (applied, deleted, discarded, failed)",
	}, []string{"outcome"})

	syncRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_runs_total",
		Help: "Collection sync passes by result (ok, blocked, offline, error)",
	}, []string{"result"})

	syncDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_duration_seconds",
		Help:    "Duration of collection sync passes",
		Buckets: prometheus.DefBuckets,
	})

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sync_queue_depth",
		Help: "Pending offline actions per collection",
	}, []string{"collection"})

	remoteCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_remote_calls_total",
		Help: "Remote submissions by operation and result",
	}, []string{"operation", "result"})

	registry.MustRegister(recordsResolved, syncRuns, syncDuration, queueDepth, remoteCalls)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		recordsResolved: recordsResolved,
		syncRuns:        syncRuns,
		syncDuration:    syncDuration,
		queueDepth:      queueDepth,
		remoteCalls:     remoteCalls,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// ObserveRecord counts one reconciled record outcome.
func (m *MetricsService) ObserveRecord(outcome string) {
	if m == nil {
		return
	}
	m.recordsResolved.WithLabelValues(outcome).Inc()
}

// ObserveRun counts one collection sync pass and its duration.
func (m *MetricsService) ObserveRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

// SetQueueDepth records the pending action count for a collection.
func (m *MetricsService) SetQueueDepth(collection string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(collection).Set(float64(depth))
}

// ObserveRemoteCall counts one remote submission.
func (m *MetricsService) ObserveRemoteCall(operation, result string) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(operation, result).Inc()
}
