// Package metrics exposes the Prometheus metrics of the cat gallery.
// Metrics are defined in their respective packages (catapi, ratelimit,
// gallery, pagination) to keep the packages independent; this package serves
// them and documents what exists.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the gallery.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every metric registered on the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics and /health.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start serves in the background. Listen errors other than a clean shutdown
// are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Metrics Documentation
//
// Request Metrics (pkg/catapi):
//   - catapi_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catapi_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catapi_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catapi_rate_limit_remaining (Gauge): Requests remaining in the upstream window
//   - catapi_rate_limit_blocks_total (Counter): Requests blocked by the gate
//   - catapi_rate_limit_hits_total (Counter): 429 responses received
//
// Gallery Metrics (pkg/gallery):
//   - gallery_fetches_total{outcome} (Counter): Page fetches by outcome (ok, empty, failed, stale)
//   - gallery_fetch_duration_seconds (Histogram): Page fetch duration including decoding
//   - gallery_page_changes_total (Counter): Page-change events
//   - gallery_max_pages (Gauge): Page count of the last applied fetch
//
// Pagination Metrics (pkg/pagination):
//   - pagination_pages_fetched_total{status} (Counter): Pages fetched by batch fetchers
//
// Example Prometheus Queries:
//
//   # Stale result ratio
//   rate(gallery_fetches_total{outcome="stale"}[5m]) / rate(gallery_fetches_total[5m])
//
//   # Request Error Rate
//   rate(catapi_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catapi_request_duration_seconds_bucket[5m]))
