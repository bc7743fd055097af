// Package metrics exposes the Prometheus metrics of the Seer client.
// All metrics are defined in their respective packages (auth, retry,
// pagination, client, cache, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides the HTTP handler and the reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Authentication Metrics (pkg/auth):
//   - seer_auth_attempts_total{source, result} (Counter): Login/sign round-trips
//   - seer_auth_refreshes_total{source} (Counter): Session refreshes
//
// Retry Metrics (pkg/retry):
//   - seer_retries_total{op} (Counter): Retry attempts by operation
//   - seer_retry_backoff_seconds{op} (Histogram): Backoff duration by operation
//   - seer_retry_exhausted_total{op} (Counter): Operations that exhausted their attempts
//
// Paged Fetch Metrics (pkg/pagination):
//   - seer_pages_total{result} (Counter): Pages by result (success, failed, aborted)
//   - seer_page_duration_seconds (Histogram): Time per page including retries
//   - seer_fetch_workers_active (Gauge): Page workers currently running
//
// Request Metrics (pkg/client):
//   - seer_requests_total{operation, status} (Counter): Requests by operation (graphql, download) and HTTP status
//   - seer_request_duration_seconds{operation} (Histogram): Request duration by operation
//   - seer_errors_total{class} (Counter): Errors by class (transient, auth, permanent)
//   - seer_reauthentications_total (Counter): Queries re-issued after NOT_AUTHENTICATED
//
// Cache Metrics (pkg/cache):
//   - seer_cache_hits_total{layer="redis"} (Counter): Chunk cache hits
//   - seer_cache_misses_total (Counter): Chunk cache misses
//   - seer_cache_size_bytes{layer="redis"} (Gauge): Bytes served from cache
//   - seer_cache_skipped_total{reason} (Counter): Chunks not stored (too_large)
//   - seer_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/ratelimit):
//   - seer_pacer_wait_seconds (Histogram): Time a query waited for its slot
//   - seer_pacer_waits_total (Counter): Queries delayed by the query budget
//   - seer_pacer_store_errors_total (Counter): Shared store failures
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(seer_cache_hits_total[5m])) /
//   (sum(rate(seer_cache_hits_total[5m])) + sum(rate(seer_cache_misses_total[5m])))
//
//   # Failed Page Rate
//   rate(seer_pages_total{result="failed"}[5m]) / rate(seer_pages_total[5m])
//
//   # P95 Query Latency
//   histogram_quantile(0.95, rate(seer_request_duration_seconds_bucket{operation="graphql"}[5m]))
//
//   # Time Spent Pacing
//   rate(seer_pacer_wait_seconds_sum[5m])
