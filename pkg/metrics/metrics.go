// Package metrics exposes the lifecycle engine's Prometheus metrics: a
// counter per state transition and a histogram of deploy latency,
// served from the Recorder's own registry so the /metrics endpoint
// never leaks a collector registered elsewhere in the process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records lifecycle state transitions and deploy latency. The
// zero value is not usable; construct one with NewRecorder.
type Recorder struct {
	transitions *prometheus.CounterVec
	deploys     *prometheus.HistogramVec
}

// NewRecorder creates a Recorder against its own registry, returning
// the Recorder and an http.Handler for the /metrics endpoint.
func NewRecorder() (*Recorder, http.Handler) {
	reg := prometheus.NewRegistry()

	transitions := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "autopeer_lifecycle_transitions_total",
		Help: "Count of peering lifecycle state transitions by origin, destination, and outcome.",
	}, []string{"from", "to", "outcome"})

	deploys := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "autopeer_deploy_duration_seconds",
		Help:    "Duration of deploy operations (tunnel + BGP session activation).",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return &Recorder{transitions: transitions, deploys: deploys}, handler
}

// Transition records a single state transition. outcome is typically
// "ok" or "error".
func (r *Recorder) Transition(from, to, outcome string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to, outcome).Inc()
}

// ObserveDeploy records how long a deploy operation took.
func (r *Recorder) ObserveDeploy(seconds float64, outcome string) {
	if r == nil {
		return
	}
	r.deploys.WithLabelValues(outcome).Observe(seconds)
}
