package report

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Metrics counts board outcomes.
type Metrics struct {
	Boards        *prometheus.CounterVec // labels: outcome
	StageFailures *prometheus.CounterVec // labels: stage, kind
	Duration      prometheus.Histogram
	Retries       *prometheus.CounterVec // labels: stage
}

// NewMetrics registers the board metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Boards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prodloader_boards_total",
			Help: "Board sessions by outcome.",
		}, []string{"outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prodloader_stage_failures_total",
			Help: "Failed board sessions by stage and error kind.",
		}, []string{"stage", "kind"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "prodloader_session_duration_seconds",
			Help:    "Wall time of board sessions.",
			Buckets: prometheus.LinearBuckets(10, 10, 12),
		}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prodloader_retries_total",
			Help: "Retried attempts by stage.",
		}, []string{"stage"}),
	}
	reg.MustRegister(m.Boards, m.StageFailures, m.Duration, m.Retries)
	return m
}

// Report implements Reporter.
func (m *Metrics) Report(_ context.Context, r *Result) error {
	m.Boards.WithLabelValues(r.Outcome).Inc()
	if r.Outcome == OutcomeFail {
		m.StageFailures.WithLabelValues(r.Stage, r.Kind).Inc()
	}
	m.Duration.Observe(r.Duration().Seconds())
	return nil
}

// Retried counts one retried attempt in stage.
func (m *Metrics) Retried(stage string) {
	m.Retries.WithLabelValues(stage).Inc()
}
