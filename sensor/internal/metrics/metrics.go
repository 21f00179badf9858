package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_ingest_envelopes_total",
			Help: "Total number of envelopes processed, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensor_ingest_duration_seconds",
			Help:    "Duration of envelope ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	DwellTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensor_ingest_dwell_time_seconds",
			Help:    "Dwell time reported by accepted readings",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
		},
	)

	// Query metrics
	QueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_query_requests_total",
			Help: "Total number of record queries, by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sensor_query_duration_seconds",
			Help:    "Duration of record queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueryCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensor_query_coalesced_total",
			Help: "Total number of queries answered by an in-flight identical query",
		},
	)

	// Storage metrics
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sensor_store_duration_seconds",
			Help:    "Duration of record store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_store_errors_total",
			Help: "Total number of record store errors",
		},
		[]string{"backend", "operation"},
	)

	// Subscriber metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_subscriber_deliveries_total",
			Help: "Total number of queue deliveries, by disposition",
		},
		[]string{"disposition"},
	)

	DLQMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_dlq_messages_total",
			Help: "Total number of envelopes written to the dead letter queue",
		},
		[]string{"kind"},
	)

	DLQWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensor_dlq_write_errors_total",
			Help: "Total number of failed dead letter queue writes",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_rate_limit_hits_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"endpoint"},
	)
)

// OutcomeAccepted labels successful ingestion and query outcomes; failures
// use the error kind name.
const OutcomeAccepted = "accepted"
