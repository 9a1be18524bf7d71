// Package metrics exposes the Prometheus collectors shared by the sync
// engine, the cache-aside store and the HTTP layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache-aside store
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_cache_lookups_total",
			Help: "Cache-aside reads by collection and result",
		},
		[]string{"collection", "result"}, // "hit", "miss"
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_cache_invalidated_entries_total",
			Help: "Cache entries removed by collection writes",
		},
		[]string{"collection"},
	)

	// Sync passes
	SyncPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_sync_passes_total",
			Help: "Completed sync passes by service and result",
		},
		[]string{"service", "result"}, // "success", "failure"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfsync_sync_duration_seconds",
			Help:    "Duration of sync passes",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service"},
	)

	SyncInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfsync_sync_in_progress",
			Help: "1 while a pass for the service is running",
		},
		[]string{"service"},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfsync_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful pass",
		},
		[]string{"service"},
	)

	RecordOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_record_outcomes_total",
			Help: "Per-record results of sync passes",
		},
		[]string{"service", "stage", "result"},
	)

	// External sources
	SourceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_source_requests_total",
			Help: "Outbound requests to external catalog sources",
		},
		[]string{"source", "status"},
	)

	SourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfsync_source_request_duration_seconds",
			Help:    "Latency of outbound source requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shelfsync_circuit_breaker_state",
			Help: "Source circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_circuit_breaker_transitions_total",
			Help: "Source circuit breaker state transitions",
		},
		[]string{"source", "from", "to"},
	)

	SecondaryMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_secondary_image_matches_total",
			Help: "High resolution artwork lookups by result",
		},
		[]string{"result"}, // "matched", "reused", "no_match", "error"
	)

	// Image cache
	ImageAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_image_acquisitions_total",
			Help: "Image cache acquisitions by source tag and result",
		},
		[]string{"source", "result"}, // "cached", "downloaded", "failed"
	)

	// HTTP API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfsync_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfsync_api_request_duration_seconds",
			Help:    "HTTP API latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordCacheLookup records a cache-aside read
func RecordCacheLookup(collection string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(collection, result).Inc()
}

// RecordSyncPass records a finished pass
func RecordSyncPass(service string, duration time.Duration, err error) {
	SyncDuration.WithLabelValues(service).Observe(duration.Seconds())
	if err != nil {
		SyncPasses.WithLabelValues(service, "failure").Inc()
		return
	}
	SyncPasses.WithLabelValues(service, "success").Inc()
	SyncLastSuccess.WithLabelValues(service).Set(float64(time.Now().Unix()))
}

// TrackSyncRunning flips the in-progress gauge for a service
func TrackSyncRunning(service string, running bool) {
	if running {
		SyncInProgress.WithLabelValues(service).Set(1)
	} else {
		SyncInProgress.WithLabelValues(service).Set(0)
	}
}

// RecordSourceRequest records an outbound source call
func RecordSourceRequest(source, status string, duration time.Duration) {
	SourceRequests.WithLabelValues(source, status).Inc()
	SourceRequestDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordAPIRequest records an HTTP or gRPC API request
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
