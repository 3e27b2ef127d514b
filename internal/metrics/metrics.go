// Package metrics exposes Prometheus counters for HTTP traffic, pipeline
// stage transitions and HR user sync runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	userSync    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "HTTP requests served, by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_stage_transitions_total",
			Help: "Agreement rows appended, by conversion stage.",
		}, []string{"stage"}),
		userSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_user_sync_total",
			Help: "HR users processed by the sync, by outcome.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.transitions,
		m.userSync,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// StageAppended counts an appended agreement row.
func (m *Metrics) StageAppended(stage string) {
	m.transitions.WithLabelValues(stage).Inc()
}

// UserSynced adds n users to the given sync outcome.
func (m *Metrics) UserSynced(action string, n int) {
	if n <= 0 {
		return
	}
	m.userSync.WithLabelValues(action).Add(float64(n))
}
