// Package server exposes the local HTTP API the watchlist UI talks to.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"fundwatch/internal/scheduler"
	"fundwatch/internal/watchlist"
)

// Server wires the chi router around the watchlist store and scheduler.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	store  *watchlist.Store
	sched  *scheduler.Scheduler
	ctx    context.Context
}

// New creates the HTTP server. ctx is used for background work triggered by
// requests, which must outlive the request itself.
func New(ctx context.Context, port int, store *watchlist.Store, sched *scheduler.Scheduler, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    log.With().Str("component", "server").Logger(),
		store:  store,
		sched:  sched,
		ctx:    ctx,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// The UI is a static page served from anywhere local; keep CORS permissive.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/watchlist", s.handleListWatchlist)
		r.Post("/watchlist", s.handleAddTicker)
		r.Delete("/watchlist/{symbol}", s.handleRemoveTicker)
		r.Post("/watchlist/bulk-delete", s.handleBulkDelete)
		r.Put("/watchlist/sort", s.handleSortOrder)
		r.Get("/valuations", s.handleValuations)
		r.Get("/indices", s.handleIndices)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/progress", s.handleProgress)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
	})
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
