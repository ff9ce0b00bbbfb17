package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the generator.
// All methods are safe to call on a nil *Metrics (no-op), so components can
// run without instrumentation in tests.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	frameAttemptsTotal  *prometheus.CounterVec
	framesTotal         *prometheus.CounterVec
	generationsTotal    *prometheus.CounterVec
	generationDuration  prometheus.Histogram
	generationsInFlight prometheus.Gauge
	storedVideos        prometheus.Gauge
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptreel_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "promptreel_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		frameAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptreel_frame_attempts_total",
			Help: "Image provider attempts by outcome (ok, rate_limited, rejected, transport)",
		}, []string{"outcome"}),
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptreel_frames_total",
			Help: "Frames reaching a terminal state, by state",
		}, []string{"state"}),
		generationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptreel_generations_total",
			Help: "Generation runs by result (success, no_frames, assemble_failed, error)",
		}, []string{"result"}),
		generationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptreel_generation_duration_seconds",
			Help:    "Wall time of a full generation run",
			Buckets: []float64{10, 20, 30, 45, 60, 90, 120, 180, 300, 600},
		}),
		generationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptreel_generations_in_flight",
			Help: "Generation runs currently holding a worker slot",
		}),
		storedVideos: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "promptreel_stored_videos",
			Help: "Videos currently listed in the metadata document",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.frameAttemptsTotal,
		m.framesTotal,
		m.generationsTotal,
		m.generationDuration,
		m.generationsInFlight,
		m.storedVideos,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObserveFrameAttempt records one provider call outcome.
func (m *Metrics) ObserveFrameAttempt(outcome string) {
	if m == nil {
		return
	}
	m.frameAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFrame records a frame that reached a terminal state.
func (m *Metrics) ObserveFrame(state string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(state).Inc()
}

// ObserveGeneration records a finished generation run.
func (m *Metrics) ObserveGeneration(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generationsTotal.WithLabelValues(result).Inc()
	m.generationDuration.Observe(elapsed.Seconds())
}

// GenerationStarted bumps the in-flight gauge; call the returned func when done.
func (m *Metrics) GenerationStarted() func() {
	if m == nil {
		return func() {}
	}
	m.generationsInFlight.Inc()
	return m.generationsInFlight.Dec
}

// SetStoredVideos sets the stored videos gauge.
func (m *Metrics) SetStoredVideos(n int) {
	if m == nil {
		return
	}
	m.storedVideos.Set(float64(n))
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
