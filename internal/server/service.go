// Package server exposes the query pipeline and history sync engine
// over HTTP.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/rescuelabs/protocold/internal/config"
	gormdb "github.com/rescuelabs/protocold/internal/db/gorm"
	"github.com/rescuelabs/protocold/internal/histsync"
	"github.com/rescuelabs/protocold/internal/ingest"
	"github.com/rescuelabs/protocold/internal/pipeline"
	"github.com/rescuelabs/protocold/internal/quota"
)

// Service wires the core components behind the HTTP surface.
type Service struct {
	version    string
	cfg        *config.Config
	store      *gormdb.Store
	users      *gormdb.UserStore
	protocols  *gormdb.ProtocolStore
	gate       *quota.Gate
	pipeline   *pipeline.Pipeline
	syncEngine *histsync.Engine
	chunker    *ingest.Chunker
	router     *chi.Mux
	startTime  time.Time
	ready      atomic.Bool
}

// Deps holds the constructed core components the service serves.
type Deps struct {
	Config     *config.Config
	Store      *gormdb.Store
	Users      *gormdb.UserStore
	Protocols  *gormdb.ProtocolStore
	Gate       *quota.Gate
	Pipeline   *pipeline.Pipeline
	SyncEngine *histsync.Engine
	Chunker    *ingest.Chunker
}

// New creates the HTTP service and mounts its routes.
func New(deps Deps, version string) *Service {
	s := &Service{
		version:    version,
		cfg:        deps.Config,
		store:      deps.Store,
		users:      deps.Users,
		protocols:  deps.Protocols,
		gate:       deps.Gate,
		pipeline:   deps.Pipeline,
		syncEngine: deps.SyncEngine,
		chunker:    deps.Chunker,
		router:     chi.NewRouter(),
		startTime:  time.Now(),
	}
	s.setupRoutes()
	s.ready.Store(true)
	return s
}

// Router returns the HTTP handler for serving and for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/api/status", s.handleStatus)

	s.router.Post("/api/query", s.handleSubmitQuery)
	s.router.Post("/api/history/sync", s.handleSync)
	s.router.Get("/api/history", s.handleListHistory)
	s.router.Delete("/api/history", s.handleClearHistory)
	s.router.Delete("/api/history/{id}", s.handleDeleteEntry)

	s.router.Post("/api/admin/protocols", s.handleIngestProtocols)
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.ListenAddr).Str("version", s.version).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
