package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the data-access layer.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabledex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tabledex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabledex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	ConnectionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabledex",
			Name:      "connection_retries_total",
			Help:      "Backend operation retries by operation",
		},
		[]string{"op"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tabledex",
			Name:      "search_requests_total",
			Help:      "Semantic search requests by outcome",
		},
		[]string{"status"},
	)
)

// Register registers all collectors explicitly (no init side effects).
func Register() {
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingCacheTotal,
		ConnectionRetriesTotal,
		SearchRequestsTotal,
	)
}
