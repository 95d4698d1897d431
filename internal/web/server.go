package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/lostfound/internal/lifecycle"
	"github.com/vbonduro/lostfound/internal/metrics"
	"github.com/vbonduro/lostfound/internal/search"
	"github.com/vbonduro/lostfound/internal/service"
)

type Server struct {
	items     *service.ItemService
	engine    *search.Engine
	lifecycle *lifecycle.Manager
	metrics   *metrics.Metrics
	health    func(context.Context) error
	mux       *http.ServeMux
	logger    *slog.Logger
}

type Option func(*Server)

// WithHealthCheck makes /api/health report 503 when check fails.
func WithHealthCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

func NewServer(
	items *service.ItemService,
	engine *search.Engine,
	lc *lifecycle.Manager,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		items:     items,
		engine:    engine,
		lifecycle: lc,
		metrics:   m,
		mux:       http.NewServeMux(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/items", s.handleListItems)
	s.mux.HandleFunc("POST /api/items", s.handleCreateItem)
	s.mux.HandleFunc("GET /api/items/campuses", s.handleCampuses)
	s.mux.HandleFunc("GET /api/items/archived/list", s.handleListArchived)
	s.mux.HandleFunc("POST /api/items/auto-archive", s.handleAutoArchive)
	s.mux.HandleFunc("GET /api/items/{id}", s.handleGetItem)
	s.mux.HandleFunc("PUT /api/items/{id}", s.handleUpdateItem)
	s.mux.HandleFunc("DELETE /api/items/{id}", s.handleDeleteItem)
	s.mux.HandleFunc("PATCH /api/items/{id}/resolve", s.handleResolve)
	s.mux.HandleFunc("PATCH /api/items/{id}/archive", s.handleArchive)
	s.mux.HandleFunc("GET /api/items/{id}/similar", s.handleSimilar)

	s.mux.HandleFunc("POST /api/search/text", s.handleSearch(searchText))
	s.mux.HandleFunc("POST /api/search/image", s.handleSearch(searchImage))
	s.mux.HandleFunc("POST /api/search/hybrid", s.handleSearch(searchHybrid))

	s.mux.HandleFunc("POST /api/upload/image", s.handleUploadImage)
	s.mux.HandleFunc("POST /api/upload/images", s.handleUploadImages)
	s.mux.HandleFunc("GET /api/images/{key}", s.handleGetImage)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// securityHeaders sets the standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{Error: "database unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Lost & Found API is running"})
}
