package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "procgraph"

// Metrics holds the pipeline and API collectors on a private registry, so several
// instances (one per test) never collide.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	records       *prometheus.CounterVec
	skippedRels   *prometheus.CounterVec
	droppedContrs prometheus.Counter
	stageDuration *prometheus.HistogramVec
	riskFlags     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	busEvents     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_total",
			Help: "Input records by outcome (ingested, rejected, deduplicated).",
		}, []string{"outcome"}),
		skippedRels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "skipped_relationships_total",
			Help: "Relationships not created because an endpoint was missing.",
		}, []string{"kind"}),
		droppedContrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_contracts_total",
			Help: "Contracts dropped because their award was not loaded.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "stage_duration_seconds",
			Help:    "Pipeline stage duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"stage", "status"}),
		riskFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "risk_writes_total",
			Help: "Risk attribute writes by pass.",
		}, []string{"pass"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Pipeline runs by kind and status.",
		}, []string{"kind", "status"}),
		busEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "run_events_total",
			Help: "Run progress events received from the bus.",
		}, []string{"stage", "status"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.records, m.skippedRels, m.droppedContrs, m.stageDuration, m.riskFlags, m.runs, m.busEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) AddRecords(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) AddSkippedRelationships(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedRels.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) AddDroppedContracts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedContrs.Add(float64(n))
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(dur.Seconds())
}

func (m *Metrics) AddRiskWrites(pass string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.riskFlags.WithLabelValues(pass).Add(float64(n))
}

func (m *Metrics) IncRun(kind, status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) AddBusEvent(stage, status string) {
	if m == nil {
		return
	}
	m.busEvents.WithLabelValues(stage, status).Inc()
}
