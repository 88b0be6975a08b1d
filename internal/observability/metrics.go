// Package observability holds the Prometheus metrics and OpenTelemetry
// tracing setup shared across the pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// ModerationVerdicts counts classifier verdicts by outcome
	// ("published", "quarantined").
	ModerationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_moderation_verdicts_total",
		Help: "Total number of moderation verdicts by outcome",
	}, []string{"outcome"})

	// ClassifierFailures counts classifier gateway failures by kind
	// ("unavailable", "malformed") and the policy applied ("open", "closed").
	ClassifierFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_classifier_failures_total",
		Help: "Total number of classifier gateway failures by kind and applied policy",
	}, []string{"kind", "policy"})

	// ClassifierLatency records classifier round-trip latency.
	ClassifierLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "murmur_classifier_latency_seconds",
		Help:    "Classifier gateway round-trip latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of active feed subscribers.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped because a
	// subscriber's send buffer was full.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
