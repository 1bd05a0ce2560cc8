// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webcarros_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DocumentQueryLatency records document store latency by operation and collection.
	DocumentQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webcarros_document_query_latency_seconds",
		Help:    "Document store query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection"})

	// ListingsCreated counts listings written by the create flow.
	ListingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcarros_listings_created_total",
		Help: "Total number of listings created",
	})

	// ListingsDeleted counts owner deletions by outcome.
	ListingsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webcarros_listings_deleted_total",
		Help: "Total number of listing deletions by outcome",
	}, []string{"outcome"})

	// ImageOperations counts object store image operations by operation and outcome.
	ImageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webcarros_image_operations_total",
		Help: "Total number of image uploads and deletes by outcome",
	}, []string{"operation", "outcome"})

	// ActiveClientSessions is the gauge of live client sessions.
	ActiveClientSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webcarros_client_sessions_active",
		Help: "Number of live client sessions",
	})

	// NotificationSockets is the gauge of open notification websockets.
	NotificationSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webcarros_notification_sockets",
		Help: "Number of open notification websockets",
	})

	// ToastsPushed counts toasts by kind.
	ToastsPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webcarros_toasts_pushed_total",
		Help: "Total number of toasts pushed by kind",
	}, []string{"kind"})

	// OrphanImagesReclaimed counts blobs removed by the reconciler.
	OrphanImagesReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webcarros_orphan_images_reclaimed_total",
		Help: "Total number of unreferenced images deleted by reconciliation",
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, collection string) func() {
	start := time.Now()
	return func() {
		DocumentQueryLatency.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
	}
}

// Outcome maps an error to a metrics label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
