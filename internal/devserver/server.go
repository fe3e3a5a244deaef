// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/noldarim/wfbuilder/internal/config"
	"github.com/noldarim/wfbuilder/internal/protocol"
)

const eventBuffer = 1024

// Server is the REST + WebSocket development service.
type Server struct {
	httpServer  *http.Server
	broadcaster *EventBroadcaster
	registry    *ClientRegistry
	store       *Store
	generator   *Generator

	runCtx    context.Context
	cancelRun context.CancelFunc
}

// New creates and wires up the development service. It does NOT start
// listening; call Run or Serve for that.
func New(cfg *config.DevServerConfig) *Server {
	events := make(chan protocol.Event, eventBuffer)
	metrics := NewMetrics()
	registry := NewClientRegistry(metrics)
	store := NewStore()
	generator := NewGenerator(store, events, cfg.StageDelay, metrics)

	runCtx, cancelRun := context.WithCancel(context.Background())
	handlers := NewHandlers(runCtx, store, generator)

	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(MaxBodySize(1 << 20)) // 1 MB default

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", handlers.History)
			r.Post("/generate", handlers.Generate)
			r.Get("/{id}", handlers.GetWorkflow)
			r.Get("/{id}/download", handlers.DownloadWorkflow)
			r.Delete("/{id}", handlers.DeleteWorkflow)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/list", handlers.ListAgents)
			r.Get("/pipeline", handlers.Pipeline)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/types", handlers.ModelTypes)
			r.Get("/loras", handlers.Loras)
			r.Get("/resolutions", handlers.Resolutions)
		})
	})

	// WebSocket
	r.Get("/ws/progress", HandleWebSocket(registry, cfg.AllowedOrigins))

	r.Handle("/metrics", metrics.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		broadcaster: NewEventBroadcaster(events, registry),
		registry:    registry,
		store:       store,
		generator:   generator,
		runCtx:      runCtx,
		cancelRun:   cancelRun,
	}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Clients returns the number of connected WebSocket clients.
func (s *Server) Clients() int {
	return s.registry.Len()
}

// StartBroadcaster runs the event broadcaster until ctx is cancelled. Serve
// and Run call it; tests that mount Handler themselves call it directly.
func (s *Server) StartBroadcaster(ctx context.Context) {
	go func() {
		const maxRetries = 3
		for attempt := 1; attempt <= maxRetries; attempt++ {
			func() {
				defer func() {
					if r := recover(); r != nil {
						getLog().Error().Interface("panic", r).Int("attempt", attempt).Msg("Event broadcaster panic")
					}
				}()
				s.broadcaster.Run(ctx)
			}()

			// Normal return (context cancelled), exit without retry.
			if ctx.Err() != nil {
				return
			}

			if attempt < maxRetries {
				getLog().Warn().Int("attempt", attempt).Msg("Restarting event broadcaster after panic")
				time.Sleep(1 * time.Second)
			}
		}
		getLog().Error().Msg("Event broadcaster exhausted retries - events will no longer be dispatched")
	}()
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.StartBroadcaster(ctx)

	errCh := make(chan error, 1)
	go func() {
		getLog().Info().Str("addr", ln.Addr().String()).Msg("Development service listening")
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.cancelRun()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops running generations and gracefully stops the HTTP server.
// Hijacked WebSocket connections are not tracked by http.Server and end when
// the process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRun()
	err := s.httpServer.Shutdown(ctx)
	s.generator.Wait()
	return err
}
