package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the validation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	CertificatesTotal *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageFallbacks    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_runs_total",
			Help: "Total number of validation runs by final status",
		}, []string{"status"}),
		CertificatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_certificates_total",
			Help: "Total number of certificates decided, by kind and outcome",
		}, []string{"kind", "status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certflow_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"stage"}),
		StageFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_stage_fallbacks_total",
			Help: "Number of times a stage-wide failure triggered its fallback",
		}, []string{"stage"}),
	}
}

func (m *Metrics) RecordRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCertificate(kind, status string) {
	if m == nil {
		return
	}
	m.CertificatesTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) IncrementFallback(stage string) {
	if m == nil {
		return
	}
	m.StageFallbacks.WithLabelValues(stage).Inc()
}
