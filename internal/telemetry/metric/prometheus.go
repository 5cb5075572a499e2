package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "onboard"

// Save outcomes.
const (
	OutcomeSaved      = "saved"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
	OutcomeDegraded   = "degraded"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Auto-save metrics
	SavesTotal        *prometheus.CounterVec
	SaveDuration      prometheus.Histogram
	RetriesTotal      prometheus.Counter
	ActiveControllers prometheus.Gauge

	// Observer metrics
	ObserverEmissions prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with all metrics and the Go runtime
// collectors registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "saves_total",
			Help:      "Auto-save attempts by outcome.",
		}, []string{"outcome"}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "save_duration_seconds",
			Help:      "Time spent persisting a payload locally and remotely.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "retries_total",
			Help:      "Retries of a pending payload.",
		}),
		ActiveControllers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "active_controllers",
			Help:      "Auto-save controllers currently held by the registry.",
		}),
		ObserverEmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "observer",
			Name:      "emissions_total",
			Help:      "Values emitted by storage sync observers.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.SavesTotal,
		r.SaveDuration,
		r.RetriesTotal,
		r.ActiveControllers,
		r.ObserverEmissions,
		r.RequestsTotal,
		r.RequestDuration,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Registerer exposes the underlying registry for extra collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// ObserveSave records one save attempt.
func (r *Registry) ObserveSave(outcome string, d time.Duration) {
	r.SavesTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSuperseded {
		r.SaveDuration.Observe(d.Seconds())
	}
}

// IncRetry records a retry of pending data.
func (r *Registry) IncRetry() {
	r.RetriesTotal.Inc()
}

// IncObserverEmission records one observer emission.
func (r *Registry) IncObserverEmission() {
	r.ObserverEmissions.Inc()
}

// SetActiveControllers sets the controller gauge.
func (r *Registry) SetActiveControllers(n int) {
	r.ActiveControllers.Set(float64(n))
}

// ObserveRequest records one HTTP request.
func (r *Registry) ObserveRequest(method, route, status string, d time.Duration) {
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
