// Package server exposes analysis results over HTTP: the JSON API consumed
// by the frontend, thumbnail images, static files, a progress WebSocket,
// and the operational endpoints (health, readiness, Prometheus metrics).
//
// The server serves the most recently published report from memory; on
// startup the application seeds it from the sightings store when one is
// configured. All API responses carry permissive CORS headers because the
// frontend may be served from a different origin during development.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anavidal/bentos/internal/health"
	"github.com/anavidal/bentos/internal/observe"
	"github.com/anavidal/bentos/internal/sightings"
	"github.com/anavidal/bentos/internal/thumbs"
	"github.com/anavidal/bentos/pkg/types"
)

// shutdownTimeout bounds graceful shutdown once the run context is
// cancelled.
const shutdownTimeout = 10 * time.Second

// Config configures a [Server].
type Config struct {
	// ListenAddr is the host:port to bind.
	ListenAddr string

	// StaticDir serves frontend files when non-empty.
	StaticDir string

	// ThumbnailDir serves generated thumbnail images when non-empty.
	ThumbnailDir string

	// TLSCertFile and TLSKeyFile enable TLS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// SimilarityFunc resolves a free-text query to the most similar stored
// sightings. Implementations typically embed the query and delegate to
// [sightings.Store.SearchSimilar].
type SimilarityFunc func(ctx context.Context, query string, topK int) ([]sightings.SimilarSighting, error)

// Server serves analysis results. Create with [New], publish a report with
// [Server.SetReport], then call [Server.Run].
type Server struct {
	cfg     Config
	store   sightings.Store
	similar SimilarityFunc
	metrics *observe.Metrics
	checks  []health.Checker
	hub     *hub

	report     atomic.Pointer[types.Report]
	thumbIndex atomic.Pointer[thumbs.Index]
}

// Option configures a [Server].
type Option func(*Server)

// WithStore attaches a sightings store, enabling the run-history endpoints.
func WithStore(s sightings.Store) Option {
	return func(srv *Server) { srv.store = s }
}

// WithSimilarity enables the semantic similar-sightings endpoint.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(srv *Server) { srv.similar = fn }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(srv *Server) { srv.metrics = m }
}

// WithHealthChecks registers readiness checkers evaluated by /readyz.
func WithHealthChecks(checks ...health.Checker) Option {
	return func(srv *Server) { srv.checks = append(srv.checks, checks...) }
}

// New creates a Server.
func New(cfg Config, opts ...Option) *Server {
	srv := &Server{cfg: cfg}
	for _, o := range opts {
		o(srv)
	}
	if srv.metrics == nil {
		srv.metrics = observe.DefaultMetrics()
	}
	srv.hub = newHub(srv.metrics)
	empty := thumbs.Index{}
	srv.thumbIndex.Store(&empty)
	return srv
}

// SetReport publishes the report served by the API endpoints.
func (s *Server) SetReport(r *types.Report) {
	s.report.Store(r)
}

// Report returns the currently published report, or nil before the first
// [Server.SetReport].
func (s *Server) Report() *types.Report {
	return s.report.Load()
}

// SetThumbnails publishes the thumbnail index used to decorate species
// responses.
func (s *Server) SetThumbnails(idx thumbs.Index) {
	s.thumbIndex.Store(&idx)
}

// Publish broadcasts a progress event to all connected WebSocket clients.
func (s *Server) Publish(ev types.ProgressEvent) {
	s.hub.broadcast(ev)
}

// Handler builds the full route table. Exposed separately from Run so tests
// can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/species", s.handleSpecies)
	mux.HandleFunc("GET /api/phyla", s.handlePhyla)
	if s.cfg.ThumbnailDir != "" {
		mux.HandleFunc("GET /api/thumbnail/{name}", s.handleThumbnail)
	}
	if s.store != nil {
		mux.HandleFunc("GET /api/runs", s.handleRuns)
		mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	}
	if s.similar != nil {
		mux.HandleFunc("GET /api/similar", s.handleSimilar)
	}

	mux.HandleFunc("GET /ws/progress", s.handleProgress)

	health.New(s.checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return observe.Middleware(s.metrics)(cors(mux))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening",
			slog.String("addr", s.cfg.ListenAddr),
			slog.Bool("tls", s.cfg.TLSCertFile != ""),
		)
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			err = httpSrv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// cors adds the permissive CORS headers every response carries and
// short-circuits preflight requests.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
