// Package metrics provides Prometheus metrics for boardstore
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for boardstore
type Metrics struct {
	// Request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	RateLimitedTotal     prometheus.Counter

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	WhiteboardsTotal       prometheus.Gauge
	VersionsTotal          prometheus.Gauge
	SnapshotBytes          prometheus.Histogram

	// Version metrics
	CommitsTotal  *prometheus.CounterVec
	RestoresTotal *prometheus.CounterVec
	ExportsTotal  prometheus.Counter

	// Change feed
	WebsocketClients prometheus.Gauge
	EventsPublished  *prometheus.CounterVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time

	registry prometheus.Gatherer
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry. It must be called once per process.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRegistryMetrics creates metrics on a private registry
func NewRegistryMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers all metrics on reg and exposes them through g
func NewMetricsWith(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
		registry:        g,
	}

	// Request metrics
	m.GrpcRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardstore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "code"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardstore_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.RateLimitedTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstore_rate_limited_total",
			Help: "Total number of requests rejected by the per-client rate limiter",
		},
	)

	// Store metrics
	m.StoreOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_store_operations_total",
			Help: "Total number of snapshot store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardstore_store_operation_duration_seconds",
			Help:    "Duration of snapshot store operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	m.WhiteboardsTotal = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstore_whiteboards_total",
			Help: "Number of whiteboards in the store",
		},
	)

	m.VersionsTotal = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstore_versions_total",
			Help: "Number of snapshot versions across all whiteboards",
		},
	)

	m.SnapshotBytes = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boardstore_snapshot_bytes",
			Help:    "Size of committed snapshot payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// Version metrics
	m.CommitsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_commits_total",
			Help: "Total number of snapshot commits",
		},
		[]string{"status"},
	)

	m.RestoresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_restores_total",
			Help: "Total number of version restores",
		},
		[]string{"status"},
	)

	m.ExportsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "boardstore_exports_total",
			Help: "Total number of PDF exports",
		},
	)

	// Change feed
	m.WebsocketClients = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstore_websocket_clients",
			Help: "Number of connected change feed clients",
		},
	)

	m.EventsPublished = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardstore_events_published_total",
			Help: "Total number of change events published",
		},
		[]string{"type"},
	)

	// Server metrics
	m.ServerUptimeSeconds = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// Gatherer returns the registry the metrics were registered on
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// UpdateUptime periodically updates the server uptime metric until done closes
func (m *Metrics) UpdateUptime(done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		case <-done:
			return
		}
	}
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP API request by route pattern
func (m *Metrics) RecordHTTPRequest(route string, code int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, statusClass(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStoreOperation records a snapshot store operation
func (m *Metrics) RecordStoreOperation(operation string, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateStoreStats updates whiteboard and version gauges
func (m *Metrics) UpdateStoreStats(whiteboards, versions int) {
	m.WhiteboardsTotal.Set(float64(whiteboards))
	m.VersionsTotal.Set(float64(versions))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
