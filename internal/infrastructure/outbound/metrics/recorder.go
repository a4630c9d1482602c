package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
)

var _ ports.Metrics = (*Recorder)(nil)

// Recorder publishes server metrics on its own registry, so several
// servers in one process never collide.
type Recorder struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	registered  prometheus.Gauge
	unsatisfied prometheus.Gauge
	reloads     *prometheus.CounterVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stubhttp_requests_total",
			Help: "Requests received by outcome, method and status",
		}, []string{"outcome", "method", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stubhttp_request_duration_seconds",
			Help:    "Time from receipt to response, including configured delays",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"outcome"}),
		registered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stubhttp_expectations_registered",
			Help: "Expectations currently registered",
		}),
		unsatisfied: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stubhttp_expectations_unsatisfied",
			Help: "Registered expectations whose lower bound is not met",
		}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stubhttp_reloads_total",
			Help: "Definition reloads by result",
		}, []string{"result"}),
	}
}

func (r *Recorder) ObserveRequest(method, outcome string, status int, elapsed time.Duration) {
	r.requests.WithLabelValues(outcome, method, strconv.Itoa(status)).Inc()
	r.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (r *Recorder) SetExpectations(registered, unsatisfied int) {
	r.registered.Set(float64(registered))
	r.unsatisfied.Set(float64(unsatisfied))
}

func (r *Recorder) ObserveReload(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.reloads.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
