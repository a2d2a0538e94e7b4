// Package metrics serves the Prometheus metrics of catalog-sync.
// All metrics are defined in their respective packages with promauto
// to keep those packages free of a shared dependency.
//
// Metrics by package:
//
// Requests (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): request latency
//   - catalog_request_errors_total{class} (Counter): errors by class (client, server, rate_limit, network, decode)
//
// Retries (pkg/client):
//   - catalog_retries_total{error_class} (Counter): retry attempts
//   - catalog_retry_backoff_seconds{error_class} (Histogram): backoff waited before a retry
//   - catalog_retry_exhausted_total{error_class} (Counter): requests that ran out of attempts
//   - catalog_rate_limit_waits_total (Counter): 429 responses waited out
//   - catalog_rate_limit_wait_seconds (Histogram): time spent honouring Retry-After
//
// Rate limit state (pkg/ratelimit):
//   - catalog_rate_limit_cooldown_seconds (Gauge): most recent cooldown
//   - catalog_rate_limit_hits_total (Counter): 429 responses recorded by the tracker
//
// Detail cache (pkg/cache):
//   - catalog_cache_hits_total{kind} (Counter): hits by object kind (network, ...)
//   - catalog_cache_misses_total{kind} (Counter)
//   - catalog_cache_size_bytes{kind} (Gauge)
//   - catalog_cache_errors_total{operation} (Counter)
//
// Sync (pkg/pagination, pkg/syncer, pkg/snapshot):
//   - catalog_pages_fetched_total{category} (Counter)
//   - catalog_early_stops_total{category} (Counter)
//   - catalog_descriptor_failures_total{category} (Counter)
//   - catalog_records_added_total{category} (Counter)
//   - catalog_record_errors_total{category} (Counter)
//   - catalog_sync_duration_seconds{mode} (Histogram)
//   - catalog_store_rows{category} (Gauge)
//
// Change detection and scheduling (pkg/changedetect, pkg/pipeline):
//   - catalog_baseline_rows{sheet} (Gauge)
//   - catalog_growth_checks_total{growth} (Counter)
//   - catalog_cycles_total{outcome} (Counter)
//
// Example Prometheus queries:
//
//	# New records per day
//	sum by (category) (increase(catalog_records_added_total[1d]))
//
//	# Share of requests that hit a 429
//	rate(catalog_rate_limit_waits_total[1h]) / sum(rate(catalog_requests_total[1h]))
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the registerer all catalog metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Handler returns the mux serving /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// Serve exposes Handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
