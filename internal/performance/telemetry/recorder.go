// Package telemetry exports live run metrics in the Prometheus format.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/stressor/internal/performance"
)

const namespace = "stressor"

// LatencyBuckets are the histogram bounds in seconds.
var LatencyBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Recorder is a sample sink that keeps Prometheus metrics on a private
// registry, so several runs in one process never collide.
//
// # Thread Safety
//
// Record may be called concurrently.
type Recorder struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	statuses *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bytes    prometheus.Counter
}

// NewRecorder creates a recorder. Labels are added to every metric as
// constant labels (for example the target).
func NewRecorder(labels map[string]string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "requests_total",
				Help:        "Completed request attempts by endpoint and outcome",
				ConstLabels: labels,
			}, []string{"endpoint", "outcome"},
		),
		statuses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "responses_total",
				Help:        "Responses received by endpoint and status code",
				ConstLabels: labels,
			}, []string{"endpoint", "code"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Name:        "request_duration_seconds",
				Help:        "Request latency by endpoint",
				Buckets:     LatencyBuckets,
				ConstLabels: labels,
			}, []string{"endpoint"},
		),
		bytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Name:        "response_bytes_total",
				Help:        "Response body bytes read",
				ConstLabels: labels,
			},
		),
	}
}

// Record implements the collector sink interface.
func (r *Recorder) Record(s performance.Sample) {
	r.requests.WithLabelValues(s.Endpoint, s.Outcome.String()).Inc()
	if s.HasStatus() {
		r.statuses.WithLabelValues(s.Endpoint, strconv.Itoa(s.StatusCode)).Inc()
	}
	r.latency.WithLabelValues(s.Endpoint).Observe(s.Latency.Seconds())
	if s.Bytes > 0 {
		r.bytes.Add(float64(s.Bytes))
	}
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
