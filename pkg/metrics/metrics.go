// Package metrics exposes the Prometheus registry shared by the sync engine.
// All metrics are defined in their respective packages (engine, batch, client,
// cache, ratelimit) to maintain modularity and avoid circular dependencies.
//
// This package serves them over HTTP and documents what is available.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by mailsync.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Path is where the metrics endpoint is mounted.
const Path = "/metrics"

// shutdownTimeout bounds the graceful shutdown of the metrics listener.
const shutdownTimeout = 5 * time.Second

// Handler returns an HTTP handler exposing the default gatherer.
func Handler() http.Handler {
	return HandlerFor(prometheus.DefaultGatherer)
}

// HandlerFor returns an HTTP handler exposing the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves Handler at Path until ctx is done.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(Path, Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Sync Metrics (pkg/engine):
//   - mailsync_runs_total{outcome} (Counter): Sync runs by outcome (complete, incomplete, failed)
//   - mailsync_run_duration_seconds (Histogram): Sync run duration
//   - mailsync_pages_total (Counter): Summary pages fetched
//   - mailsync_records{fidelity} (Gauge): Records held by the last finished run
//   - mailsync_detail_failures_total (Counter): Messages left at summary fidelity
//   - mailsync_duplicate_identities_total (Counter): Identities seen again on a later page
//
// Batch Metrics (pkg/batch):
//   - mailsync_batches_total{mode} (Counter): Detail batches submitted (multiplexed, parallel)
//   - mailsync_batch_size (Histogram): Detail requests per batch
//   - mailsync_detail_fetches_total{outcome} (Counter): Detail fetches by outcome
//   - mailsync_detail_fetch_duration_seconds (Histogram): Detail fetch duration
//
// Request Metrics (pkg/client):
//   - mailsync_http_requests_total{endpoint, status} (Counter): Provider requests by endpoint and status
//   - mailsync_http_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - mailsync_http_errors_total{class} (Counter): Errors by class
//
// Retry Metrics (pkg/client):
//   - mailsync_retries_total{error_class} (Counter): Retry attempts by error class
//   - mailsync_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - mailsync_retry_exhausted_total{error_class} (Counter): Operations that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - mailsync_cache_hits_total{layer="redis"} (Counter): Detail cache hits
//   - mailsync_cache_misses_total (Counter): Detail cache misses
//   - mailsync_cache_size_bytes{layer="redis"} (Counter): Bytes moved through the cache
//   - mailsync_cache_errors_total{operation} (Counter): Cache operation errors
//
// Quota Metrics (pkg/ratelimit):
//   - mailsync_quota_units_total (Counter): Quota units acquired
//   - mailsync_quota_window_used (Gauge): Units used in the most recent window
//   - mailsync_quota_waits_total{reason} (Counter): Waits for quota (window, penalty)
//   - mailsync_quota_penalties_total (Counter): Rate limit penalties recorded
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mailsync_cache_hits_total[5m])) /
//   (sum(rate(mailsync_cache_hits_total[5m])) + sum(rate(mailsync_cache_misses_total[5m])))
//
//   # Detail Failure Ratio
//   rate(mailsync_detail_failures_total[1h]) / rate(mailsync_detail_fetches_total[1h])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(mailsync_http_request_duration_seconds_bucket[5m]))
//
//   # Quota Pressure
//   rate(mailsync_quota_waits_total[5m])
