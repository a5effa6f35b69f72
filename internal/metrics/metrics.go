// Package metrics declares the Prometheus collectors exported by sitebook.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote writes issued by the projects manager, by outcome.
	SyncOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebook_sync_operations_total",
			Help: "Total number of remote store operations issued by the projects manager",
		},
		[]string{"entity", "op", "result"}, // entity: project, todo; result: ok, error
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitebook_sync_duration_seconds",
			Help:    "Remote store operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"entity", "op"},
	)

	Projects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitebook_projects",
			Help: "Number of projects held by the projects manager",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebook_notifications_total",
			Help: "Total number of notifications shown",
		},
		[]string{"level"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitebook_dashboard_clients",
			Help: "Number of connected dashboard websocket clients",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitebook_http_request_duration_seconds",
			Help:    "Dashboard API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitebook_events_published_total",
			Help: "Total number of change events published to the broker",
		},
		[]string{"routing_key", "result"},
	)
)

// RecordSync records one remote operation.
func RecordSync(entity, op string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SyncOperations.WithLabelValues(entity, op, result).Inc()
	SyncDuration.WithLabelValues(entity, op).Observe(duration.Seconds())
}

// RecordHTTPRequest records one dashboard API request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
