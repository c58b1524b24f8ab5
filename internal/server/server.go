package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lazypower/polymath/internal/engine"
	"github.com/lazypower/polymath/internal/ingest"
	"github.com/lazypower/polymath/internal/store"
)

// Server is the polymath HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	ingest  *ingest.Importer
	handler http.Handler
	version string
	started time.Time

	// runs share the engine's random source, so one at a time
	genMu sync.Mutex
}

// New creates a Server. A nil engine disables generation and interest routes.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		ingest:  &ingest.Importer{Store: db},
		version: version,
		started: time.Now(),
	}
	if eng != nil {
		s.ingest.Embedder = eng.Embedder
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/suggestions/generate", s.handleGenerate)
			r.Get("/suggestions", s.handleListSuggestions)
			r.Get("/suggestions/{suggestionID}", s.handleGetSuggestion)
			r.Get("/interests", s.handleInterests)
			r.Get("/capabilities", s.handleListCapabilities)
			r.Post("/capabilities", s.handleUpsertCapability)
			r.Post("/notes", s.handleAddNote)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
		})
	})

	s.handler = otelhttp.NewHandler(r, "polymath-http-server")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}

	embedder := ""
	if s.engine != nil && s.engine.Embedder != nil {
		embedder = s.engine.Embedder.Model()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.db.Path,
		"engine":   s.engine != nil,
		"embedder": embedder,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
