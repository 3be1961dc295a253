// Package metrics exports Prometheus metrics for hand-off runs and the
// trigger endpoint.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alekspetrov/qa-handoff/internal/handoff"
)

// Metrics holds all hand-off metrics
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	GateRechecks    *prometheus.CounterVec
	PreviewLinks    *prometheus.CounterVec
	ImagesPublished *prometheus.CounterVec
	ImageFailures   prometheus.Counter
	DegradedRuns    prometheus.Counter
	TriggerRequests *prometheus.CounterVec
	TriggerDuration prometheus.Histogram
}

// New registers the metrics on a fresh registry. Each instance is
// independent, so tests can create as many as they like.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Hand-off runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Hand-off run duration in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
		GateRechecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_rechecks_total",
				Help:      "Gate re-checks by result",
			},
			[]string{"passed"},
		),
		PreviewLinks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preview_links_total",
				Help:      "Preview links posted by source",
			},
			[]string{"source"},
		),
		ImagesPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_published_total",
				Help:      "QA images posted by source",
			},
			[]string{"source"},
		),
		ImageFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_failures_total",
				Help:      "Images skipped after a download or upload failure",
			},
		),
		DegradedRuns: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "degraded_runs_total",
				Help:      "Runs that fell back because storage was unusable",
			},
		),
		TriggerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trigger_requests_total",
				Help:      "Trigger endpoint requests by path and status",
			},
			[]string{"path", "status"},
		),
		TriggerDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trigger_request_duration_seconds",
				Help:      "Trigger endpoint request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished hand-off run.
func (m *Metrics) ObserveRun(_ context.Context, r *handoff.Result) {
	m.RunsTotal.WithLabelValues(string(r.Outcome)).Inc()
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		m.RunDuration.Observe(r.Duration().Seconds())
	}
	if r.Decision.Rechecked {
		m.GateRechecks.WithLabelValues(strconv.FormatBool(r.Decision.Passed)).Inc()
	}
	if n := len(r.PreviewLinks); n > 0 {
		m.PreviewLinks.WithLabelValues(string(r.LinkSource)).Add(float64(n))
	}
	if n := len(r.Images); n > 0 {
		m.ImagesPublished.WithLabelValues(string(r.ImageSource)).Add(float64(n))
	}
	if r.ImageErrors > 0 {
		m.ImageFailures.Add(float64(r.ImageErrors))
	}
	if r.Degraded {
		m.DegradedRuns.Inc()
	}
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.TriggerRequests.WithLabelValues(r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.TriggerDuration.Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
