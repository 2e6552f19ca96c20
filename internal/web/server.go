// Package web serves the read-only status API: current security state,
// recent transitions from the audit store and a live SSE stream of
// state changes.
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/presence-guard/internal/database"
	"github.com/kozaktomas/presence-guard/internal/guard"
)

// Server represents the status web server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	tracker    *guard.Tracker
	store      database.EventStore
}

// NewServer creates a status server reading from the given tracker and
// audit store.
func NewServer(listen string, tracker *guard.Tracker, store database.EventStore) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:  r,
		tracker: tracker,
		store:   store,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // long timeout for the SSE stream
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", healthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.getStatus)
		r.Get("/events", s.getEvents)
		r.Get("/stream", s.streamTransitions)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
