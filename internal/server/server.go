package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lazypower/sounddrop/internal/engine"
)

// Options configures the HTTP surface.
type Options struct {
	AdminKey       string
	MaxUploadBytes int64
	RatePerSec     float64 // submissions per second per client IP; 0 disables
	Burst          int
}

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the sounddrop HTTP API server.
type Server struct {
	engine   *engine.Engine
	router   chi.Router
	opts     Options
	logger   zerolog.Logger
	limiters *limiterPool
	checks   map[string]Pinger
	version  string
	started  time.Time
}

// New creates a new Server over the given engine.
func New(eng *engine.Engine, opts Options, version string, logger zerolog.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	s := &Server{
		engine:   eng,
		opts:     opts,
		logger:   logger.With().Str("component", "http").Logger(),
		limiters: newLimiterPool(opts.RatePerSec, opts.Burst),
		checks:   make(map[string]Pinger),
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// AddCheck registers a dependency reported by /api/health.
func (s *Server) AddCheck(name string, p Pinger) {
	s.checks[name] = p
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/theme", s.handleTheme)

		r.Route("/sound-drops", func(r chi.Router) {
			r.Get("/", s.handleListDrops)
			r.With(s.rateLimit).Post("/", s.handleCreateDrop)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDrop)
				r.Get("/audio", s.handleAudio)
				r.With(s.rateLimit).Post("/discussion", s.handleAddComment)
				r.Put("/discussion/{cid}", s.handleEditComment)
				r.Delete("/discussion/{cid}", s.handleDeleteComment)
			})
		})
		r.With(s.rateLimit).Post("/upload-audio", s.handleUpload)

		r.Get("/archive/summary", s.handleWeeklySummary)
		r.Get("/archive/{date}", s.handleArchiveForDate)

		r.Get("/admin/sound-drops", s.handleAdminDrops)
		r.Get("/research/export", s.handleExport)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]bool, len(s.checks))
	for name, p := range s.checks {
		ok := p.Ping(ctx) == nil
		checks[name] = ok
		if !ok {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"checks":  checks,
	})
}
