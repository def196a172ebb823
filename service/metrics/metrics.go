package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Routing service Metrics
	routingCallsTotal   *prometheus.CounterVec
	routingCallDuration *prometheus.HistogramVec

	// Swap Build Metrics
	swapBuildsTotal     *prometheus.CounterVec
	swapBuildDuration   *prometheus.HistogramVec
	swapNetworkFee      *prometheus.HistogramVec
	swapLookupTablesHit *prometheus.HistogramVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		// Routing service Metrics
		routingCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routing_calls_total",
				Help: "Total number of routing service calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		routingCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "routing_call_duration_seconds",
				Help:    "Duration of routing service calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		// Swap Build Metrics
		swapBuildsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_builds_total",
				Help: "Total number of swap build attempts by outcome",
			},
			[]string{"status", "reason"},
		),
		swapBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_build_duration_seconds",
				Help:    "End-to-end duration of swap builds in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		swapNetworkFee: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_network_fee_lamports",
				Help:    "Measured network fee folded into the cleanup transfer",
				Buckets: []float64{5000, 10000, 25000, 50000, 100000, 250000, 1000000},
			},
			[]string{"endpoint"},
		),
		swapLookupTablesHit: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_lookup_tables_resolved",
				Help:    "Number of address lookup tables resolved per build",
				Buckets: []float64{0, 1, 2, 3, 5, 8},
			},
			[]string{"endpoint"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Routing service metric helpers

// RecordRoutingCall records a routing service call with duration.
func (m *Metrics) RecordRoutingCall(operation, status string, duration float64) {
	m.routingCallsTotal.WithLabelValues(operation, status).Inc()
	m.routingCallDuration.WithLabelValues(operation).Observe(duration)
}

// Swap build metric helpers

// RecordBuild records a swap build attempt. For failed builds, reason is the
// error kind; for successful builds it is empty.
func (m *Metrics) RecordBuild(status, reason string, duration float64) {
	m.swapBuildsTotal.WithLabelValues(status, reason).Inc()
	m.swapBuildDuration.WithLabelValues(status).Observe(duration)
}

// RecordNetworkFee records the measured network fee for a build.
func (m *Metrics) RecordNetworkFee(endpoint string, lamports float64) {
	m.swapNetworkFee.WithLabelValues(endpoint).Observe(lamports)
}

// RecordLookupTablesResolved records how many lookup tables resolved for a build.
func (m *Metrics) RecordLookupTablesResolved(endpoint string, count float64) {
	m.swapLookupTablesHit.WithLabelValues(endpoint).Observe(count)
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
