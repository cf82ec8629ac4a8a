package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docnarrate/internal/config"
	"github.com/dgallion1/docnarrate/internal/pipeline"
	"github.com/dgallion1/docnarrate/internal/synth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Server is the HTTP API server for docnarrate.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	speech       *synth.Client
	gatherer     prometheus.Gatherer
	uploads      *rate.Limiter
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. speech may be nil when
// latency stats are unavailable.
func NewServer(orch *pipeline.Orchestrator, speech *synth.Client, gatherer prometheus.Gatherer, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		speech:       speech,
		gatherer:     gatherer,
		uploads:      rate.NewLimiter(rate.Limit(cfg.UploadRate), cfg.UploadBurst),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.With(RateLimit(s.uploads, s.log)).Post("/api/narrate", s.handleNarrate)
		r.With(RateLimit(s.uploads, s.log)).Post("/api/narrate/batch", s.handleBatchNarrate)
		r.Get("/api/jobs/{jobID}/status", s.handleJobStatus)
		r.Get("/api/jobs/{jobID}/audio", s.handleJobAudio)
		r.Get("/api/stats/tts", s.handleTTSStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
