package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tax_events"

// Исходы приёма одной записи.
const (
	OutcomeInserted   = "inserted"
	OutcomeUpdated    = "updated"
	OutcomeSuppressed = "suppressed"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

// Исходы проверки одной ссылки.
const (
	CheckHealthy     = "healthy"
	CheckDegraded    = "degraded"
	CheckUnreachable = "unreachable"
	CheckError       = "error"
)

// Metrics хранит коллекторы пайплайна. nil *Metrics ничего не пишет.
type Metrics struct {
	gatherer prometheus.Gatherer

	ingestRecords     *prometheus.CounterVec
	validationChecks  *prometheus.CounterVec
	linkHealthScore   prometheus.Histogram
	publishableEvents prometheus.Gauge
	reviewTransitions *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
}

// New регистрирует коллекторы в reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{gatherer: reg}

	m.ingestRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_records_total",
		Help:      "Ingested event records by source and outcome",
	}, []string{"source", "outcome"})
	m.validationChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_checks_total",
		Help:      "Link health checks by outcome",
	}, []string{"outcome"})
	m.linkHealthScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "link_health_score",
		Help:      "Distribution of computed link health scores",
		Buckets:   []float64{0, 10, 25, 40, 60, 75, 90, 100},
	})
	m.publishableEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "publishable_events",
		Help:      "Publishable events after the last validation run",
	})
	m.reviewTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "review_transitions_total",
		Help:      "Review transitions by target status",
	}, []string{"status"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of pipeline runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})

	reg.MustRegister(
		m.ingestRecords,
		m.validationChecks,
		m.linkHealthScore,
		m.publishableEvents,
		m.reviewTransitions,
		m.runDuration,
	)
	return m
}

// Handler отдаёт registry в текстовом формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// IngestRecord считает исход приёма одной записи.
func (m *Metrics) IngestRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.ingestRecords.WithLabelValues(source, outcome).Inc()
}

// Check считает исход проверки ссылки и пишет оценку в гистограмму.
func (m *Metrics) Check(outcome string, score int) {
	if m == nil {
		return
	}
	m.validationChecks.WithLabelValues(outcome).Inc()
	if outcome != CheckError {
		m.linkHealthScore.Observe(float64(score))
	}
}

func (m *Metrics) SetPublishable(n int) {
	if m == nil {
		return
	}
	m.publishableEvents.Set(float64(n))
}

func (m *Metrics) ReviewTransition(status string) {
	if m == nil {
		return
	}
	m.reviewTransitions.WithLabelValues(status).Inc()
}

// ObserveRun пишет длительность запуска фоновой задачи.
func (m *Metrics) ObserveRun(job string, started time.Time) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}
