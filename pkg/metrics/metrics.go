// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// DocumentsIngestedTotal tracks documents by terminal ingestion status.
	DocumentsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_documents_total",
			Help: "Documents processed by the ingestion pipeline",
		},
		[]string{"status", "strategy"},
	)

	// ChunksPerDocument tracks how many chunks each document produced.
	ChunksPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_chunks_per_document",
			Help:    "Chunks produced per indexed document",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	// IngestQueueDepth tracks pending ingestion jobs.
	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Pending jobs in the ingestion queue",
		},
	)

	// EmbeddingRequestsTotal tracks embedding provider calls.
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Embedding provider batch requests",
		},
		[]string{"model", "status"},
	)

	// RetrievalDuration tracks end-to-end retrieval latency.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_duration_seconds",
			Help:    "Vector index query duration including ranking",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// RetrievalConfidence tracks the distribution of retrieval confidence.
	RetrievalConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_confidence",
			Help:    "Computed retrieval confidence per query",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// QueryCacheTotal tracks query cache lookups.
	QueryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_total",
			Help: "Query cache lookups",
		},
		[]string{"result"},
	)

	// ClassificationsTotal tracks intent classifications.
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_classifications_total",
			Help: "Intent classifications by resulting category",
		},
		[]string{"intent"},
	)

	// OutcomesTotal tracks terminal workflow outcomes.
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_outcomes_total",
			Help: "Terminal outcomes per processed message",
		},
		[]string{"outcome"},
	)

	// EscalationDeliveryTotal tracks ticket delivery attempts.
	EscalationDeliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_delivery_total",
			Help: "Escalation ticket delivery attempts",
		},
		[]string{"status"},
	)

	// EscalationQueueDepth tracks tickets waiting in the durable queue.
	EscalationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "escalation_queue_depth",
			Help: "Tickets waiting in the durable escalation queue",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRetrieval records metrics for one ranked retrieval.
func RecordRetrieval(duration, confidence float64) {
	RetrievalDuration.Observe(duration)
	RetrievalConfidence.Observe(confidence)
}
