package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission engine metrics
	PermissionResolutionsTotal *prometheus.CounterVec
	PermissionUpdatesTotal     *prometheus.CounterVec
	PermissionUpdateDeltaSize  prometheus.Histogram

	// Sync queue metrics
	SyncEventsEnqueuedTotal prometheus.Counter
	SyncQueueDepth          prometheus.Gauge

	// Propagation worker metrics
	SyncProcessedTotal  *prometheus.CounterVec
	SyncProcessDuration prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arbor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		PermissionResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_permission_resolutions_total",
				Help: "Total number of node permission resolutions",
			},
			[]string{"result"},
		),
		PermissionUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_permission_updates_total",
				Help: "Total number of permission update calls",
			},
			[]string{"result"},
		),
		PermissionUpdateDeltaSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbor_permission_update_delta_size",
				Help:    "Number of grant additions plus removals per update",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		SyncEventsEnqueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "arbor_sync_events_enqueued_total",
				Help: "Total number of permission sync events enqueued",
			},
		),
		SyncQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "arbor_sync_queue_depth",
				Help: "Number of permission sync events waiting on the queue",
			},
		),
		SyncProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arbor_sync_processed_total",
				Help: "Total number of permission sync events processed",
			},
			[]string{"result"},
		),
		SyncProcessDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "arbor_sync_process_duration_seconds",
				Help:    "Duration of one permission sync event",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionResolutionsTotal,
		m.PermissionUpdatesTotal,
		m.PermissionUpdateDeltaSize,
		m.SyncEventsEnqueuedTotal,
		m.SyncQueueDepth,
		m.SyncProcessedTotal,
		m.SyncProcessDuration,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
