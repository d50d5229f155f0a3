// Package metrics provides Prometheus metrics for the proxy core and its
// admin HTTP surface.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for admin API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// dialBuckets covers upstream TCP connect latency, typically tighter than
// admin-surface HTTP latency.
var dialBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	// Admin HTTP surface (health, metrics, proxy status).
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Proxy core.
	ConnectionsAccepted prometheus.Counter
	ConnectionsDenied   prometheus.Counter
	ConnectionsBadConn  prometheus.Counter
	ConnectionsTunneled prometheus.Counter
	DialDuration        *prometheus.HistogramVec
	RelayBytesTotal     *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwdproxy_admin_requests_total",
			Help: "Total inbound admin-surface HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fwdproxy_admin_request_duration_seconds",
			Help:    "Inbound admin-surface HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fwdproxy_admin_requests_in_flight",
			Help: "Number of admin-surface HTTP requests currently being processed.",
		}),

		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdproxy_connections_accepted_total",
			Help: "Total proxy connections accepted.",
		}),

		ConnectionsDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdproxy_connections_denied_total",
			Help: "Total connections denied by ACL or domain filter.",
		}),

		ConnectionsBadConn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdproxy_connections_badconn_total",
			Help: "Total connections that failed due to malformed input or unreachable upstream.",
		}),

		ConnectionsTunneled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fwdproxy_connections_tunneled_total",
			Help: "Total connections redirected through the fixed tunnel target.",
		}),

		DialDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fwdproxy_dial_duration_seconds",
			Help:    "Upstream TCP connect latency in seconds, by outcome.",
			Buckets: dialBuckets,
		}, []string{"outcome"}),

		RelayBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fwdproxy_relay_bytes_total",
			Help: "Total bytes relayed, by direction.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.ConnectionsAccepted,
		m.ConnectionsDenied,
		m.ConnectionsBadConn,
		m.ConnectionsTunneled,
		m.DialDuration,
		m.RelayBytesTotal,
	)

	return m
}

// ObserveDial implements internal/dialer.MetricsRecorder.
func (m *Metrics) ObserveDial(outcome string, duration time.Duration) {
	m.DialDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncConnectionsAccepted implements internal/stats.ConnMetrics.
func (m *Metrics) IncConnectionsAccepted() { m.ConnectionsAccepted.Inc() }

// IncConnectionsDenied implements internal/stats.ConnMetrics.
func (m *Metrics) IncConnectionsDenied() { m.ConnectionsDenied.Inc() }

// IncConnectionsBadConn implements internal/stats.ConnMetrics.
func (m *Metrics) IncConnectionsBadConn() { m.ConnectionsBadConn.Inc() }

// IncConnectionsTunneled implements internal/stats.ConnMetrics.
func (m *Metrics) IncConnectionsTunneled() { m.ConnectionsTunneled.Inc() }

// ObserveRelayBytes records n bytes transferred in the given direction
// ("client_to_server" or "server_to_client").
func (m *Metrics) ObserveRelayBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	m.RelayBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
