// Package http exposes the playlist editing operations as a JSON API, plus
// health and metrics endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trackboard/internal/analytics"
	"trackboard/internal/core"
	"trackboard/internal/flood"
	"trackboard/internal/history"
	"trackboard/internal/match"
	"trackboard/internal/reconcile"
	"trackboard/internal/store"
	"trackboard/pkg/text"
)

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics

	catalog    core.CatalogClient
	cache      *store.TrackCache
	reconciler *reconcile.Reconciler
	matcher    *match.Matcher
	importer   *history.Client
	dedup      *store.ImportDedup
	analytics  *analytics.Store
	floodgate  *flood.Floodgate
	parser     *text.Parser
}

// Deps are the collaborators the API delegates to. Analytics, importer and
// floodgate are optional; the matching routes degrade gracefully without
// them.
type Deps struct {
	Catalog    core.CatalogClient
	Cache      *store.TrackCache
	Reconciler *reconcile.Reconciler
	Matcher    *match.Matcher
	Importer   *history.Client
	Dedup      *store.ImportDedup
	Analytics  *analytics.Store
	Floodgate  *flood.Floodgate
}

type Metrics struct {
	registry *prometheus.Registry

	MutationsTotal    *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	RollbacksTotal    prometheus.Counter
	BlockedTotal      prometheus.Counter
	CacheLoadDuration prometheus.Histogram
}

func newMetrics() *Metrics {
	metrics := &Metrics{
		registry: prometheus.NewRegistry(),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackboard_mutations_total",
				Help: "Total number of playlist mutations by kind and outcome",
			},
			[]string{"type", "status"},
		),
		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackboard_matches_total",
				Help: "Total number of track match results by confidence",
			},
			[]string{"confidence"},
		),
		RollbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trackboard_rollbacks_total",
				Help: "Total number of optimistic mutations rolled back",
			},
		),
		BlockedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trackboard_requests_blocked_total",
				Help: "Total number of requests blocked by rate limiting",
			},
		),
		CacheLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trackboard_cache_load_duration_seconds",
				Help:    "Time spent loading the first playlist page into the cache",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	metrics.registry.MustRegister(
		metrics.MutationsTotal,
		metrics.MatchesTotal,
		metrics.RollbacksTotal,
		metrics.BlockedTotal,
		metrics.CacheLoadDuration,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		config:     config,
		logger:     logger,
		metrics:    newMetrics(),
		catalog:    deps.Catalog,
		cache:      deps.Cache,
		reconciler: deps.Reconciler,
		matcher:    deps.Matcher,
		importer:   deps.Importer,
		dedup:      deps.Dedup,
		analytics:  deps.Analytics,
		floodgate:  deps.Floodgate,
		parser:     text.NewParser(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"trackboard"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"trackboard"}`))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/playlists", s.handlePlaylists)
	mux.HandleFunc("GET /api/playlists/{id}/tracks", s.handleTracks)
	mux.HandleFunc("POST /api/playlists/{id}/tracks", s.handleAddTracks)
	mux.HandleFunc("DELETE /api/playlists/{id}/tracks", s.handleRemoveTracks)
	mux.HandleFunc("PUT /api/playlists/{id}/tracks/order", s.handleReorderTracks)
	mux.HandleFunc("POST /api/match", s.handleMatch)
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("POST /api/import", s.handleImport)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.rateLimit(s.logVisit(mux)),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

// Handler exposes the full middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// logVisit records API requests in the analytics store, best effort.
func (s *Server) logVisit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.analytics != nil && r.URL.Path != "/metrics" && r.URL.Path != "/healthz" && r.URL.Path != "/readyz" {
			s.analytics.RecordVisit(r.Context(), r.URL.Path, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit blocks clients that exceed their per-minute request budget.
// Health and metrics probes are exempt.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.floodgate != nil && r.URL.Path != "/metrics" && r.URL.Path != "/healthz" && r.URL.Path != "/readyz" {
			if !s.floodgate.Allow(clientID(r)) {
				s.metrics.BlockedTotal.Inc()
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) recordMutation(kind string, err error) {
	status := "confirmed"

	var partial *core.PartialBatchError
	var validation *core.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		status = "partial"
	case errors.As(err, &validation):
		status = "invalid"
	default:
		status = "rolled_back"
		s.metrics.RollbacksTotal.Inc()
	}

	s.metrics.MutationsTotal.WithLabelValues(kind, status).Inc()
}
