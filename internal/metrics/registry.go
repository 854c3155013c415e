// Package metrics exposes the daemon's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics on a private registry.
type Registry struct {
	reg *prometheus.Registry

	weatherPolls    *prometheus.CounterVec
	weatherDuration prometheus.Histogram
	brokerPhase     *prometheus.GaugeVec
	brokerConnects  *prometheus.CounterVec
	apiRequests     *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobPanics       *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		weatherPolls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_weather_polls_total",
			Help: "Weather poll cycles by result",
		}, []string{"result"}),
		weatherDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "aura_weather_poll_duration_seconds",
			Help:    "Duration of weather poll cycles",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		brokerPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aura_broker_phase",
			Help: "Broker state machine phase (0 disabled, 1 discovering, 2 connecting, 3 connected)",
		}, []string{"broker"}),
		brokerConnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_broker_connect_attempts_total",
			Help: "Broker connect attempts by result",
		}, []string{"broker", "result"}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_api_requests_total",
			Help: "Settings API requests by endpoint and status code",
		}, []string{"endpoint", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aura_job_duration_seconds",
			Help:    "Duration of scheduler job runs",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"job"}),
		jobPanics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aura_job_panics_total",
			Help: "Scheduler job runs that panicked",
		}, []string{"job"}),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordWeatherPoll records one weather cycle.
func (r *Registry) RecordWeatherPoll(success bool, elapsed time.Duration) {
	r.weatherPolls.WithLabelValues(result(success)).Inc()
	r.weatherDuration.Observe(elapsed.Seconds())
}

// RecordBrokerPhase sets the current phase of a broker machine.
func (r *Registry) RecordBrokerPhase(kind string, phase int) {
	r.brokerPhase.WithLabelValues(kind).Set(float64(phase))
}

// RecordBrokerConnect counts a connect attempt.
func (r *Registry) RecordBrokerConnect(kind string, success bool) {
	r.brokerConnects.WithLabelValues(kind, result(success)).Inc()
}

// ObserveRequest counts a Settings API request.
func (r *Registry) ObserveRequest(endpoint string, status int) {
	r.apiRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// ObserveJob records a scheduler job run.
func (r *Registry) ObserveJob(name string, elapsed time.Duration, panicked bool) {
	r.jobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	if panicked {
		r.jobPanics.WithLabelValues(name).Inc()
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
