// Package http exposes leaderboards and batch ingestion over HTTP.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/observability"
	"leaderboard-kinetics/internal/pipeline"
	"leaderboard-kinetics/internal/pubsub"
	"leaderboard-kinetics/internal/storage"
)

// Pipeline is the subset of the pipeline engine served over HTTP.
type Pipeline interface {
	Ingest(ctx context.Context, tag string, batch []domain.Snapshot) (*pipeline.Result, error)
	Preview(ctx context.Context, tag string, batch []domain.Snapshot) (*pipeline.Result, error)
	Leaderboard(ctx context.Context, tag string) ([]domain.LeaderboardEntry, error)
}

// Config holds server settings.
type Config struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxBodyBytes     int64
	IngestRatePerSec float64 // per tag; 0 disables limiting
	IngestBurst      int
}

// Deps are the collaborators of the server. Everything but Pipeline is
// optional.
type Deps struct {
	Pipeline      Pipeline
	Tags          storage.TagLister
	Publisher     pubsub.Publisher
	Stream        *pubsub.Hub
	SubjectPrefix string // must match the prefix the pipeline publishes under
	Metrics       *observability.Metrics
	Gatherer      prometheus.Gatherer
	Log           zerolog.Logger
}

// Server is the HTTP front of the pipeline.
type Server struct {
	router  *mux.Router
	srv     *http.Server
	deps    Deps
	cfg     Config
	limiter *tagLimiter
}

// NewServer builds the router and the underlying http.Server.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}

	s := &Server{
		router:  mux.NewRouter(),
		deps:    deps,
		cfg:     cfg,
		limiter: newTagLimiter(cfg.IngestRatePerSec, cfg.IngestBurst),
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", observability.HandlerFor(s.deps.Gatherer)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/leaderboards").Subrouter()
	api.HandleFunc("", s.listTags).Methods(http.MethodGet)
	api.HandleFunc("/{tag}", s.getLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/{tag}/ingest", s.ingest).Methods(http.MethodPost)
	api.HandleFunc("/{tag}/stream", s.stream).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path, "", "")
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.deps.Log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Log.Info().Msg("http server shutting down")
	return s.srv.Shutdown(ctx)
}
