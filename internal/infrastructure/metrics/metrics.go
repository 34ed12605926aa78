// Package metrics exports pipeline counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

const namespace = "deals_ingestor"

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	MessagesTotal   *prometheus.CounterVec
	StageFailures   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ProductsTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
	Records         *prometheus.GaugeVec
	BreakerState    *prometheus.GaugeVec
	RetentionPurged prometheus.Counter
	StaleFailed     prometheus.Counter
}

var _ ports.PipelineObserver = (*Metrics)(nil)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: g,
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Channel messages handled, by outcome",
		}, []string{"outcome"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline failures by stage",
		}, []string{"stage"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		ProductsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_total",
			Help:      "Listings persisted, by extraction source",
		}, []string{"source"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_in_flight",
			Help:      "Messages currently being processed",
		}),
		Records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processing_records",
			Help:      "Processing records by state at the last status poll",
		}, []string{"state"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Per-host breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"host"}),
		RetentionPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_purged_total",
			Help:      "Terminal processing records removed by retention",
		}),
		StaleFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_failed_total",
			Help:      "Processing records failed after stalling mid-pipeline",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}

// Stage records how long a stage took and whether it failed.
func (m *Metrics) Stage(stage domain.Stage, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(took.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) Products(records []domain.UnifiedContentRecord) {
	if m == nil {
		return
	}
	for _, r := range records {
		m.ProductsTotal.WithLabelValues(string(r.ExtractionSource)).Inc()
	}
}

func (m *Metrics) Begin() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) End() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// SetRecordCounts publishes the latest per-state counts.
func (m *Metrics) SetRecordCounts(counts map[domain.State]int) {
	if m == nil {
		return
	}
	for state, n := range counts {
		m.Records.WithLabelValues(string(state)).Set(float64(n))
	}
}

func (m *Metrics) SetBreakerState(host string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(host).Set(float64(state))
}

func (m *Metrics) Purged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RetentionPurged.Add(float64(n))
}

// Stale counts records failed by the stale sweep.
func (m *Metrics) Stale(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.StaleFailed.Add(float64(n))
}
