// Package api exposes the run engine over HTTP: run lifecycle calls, the
// live Server-Sent Events stream, and the world-architect workflow endpoints.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"goa.design/clue/log"

	"github.com/fableforge/fableforge/runtime/architect"
	"github.com/fableforge/fableforge/runtime/run"
)

// Server is the HTTP front of the run engine.
type Server struct {
	handlers   *Handlers
	httpServer *http.Server
}

// NewServer wires the routes and constructs the HTTP server. ctx becomes the
// base context of every request so log and trace values set up by the caller
// flow into handlers; it also carries into detached workflow goroutines.
func NewServer(ctx context.Context, addr string, reg *run.Registry, arch *architect.Architect, keepalive time.Duration) *Server {
	handlers := NewHandlers(reg, arch, keepalive)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handlers.HandleHealthz)
	mux.HandleFunc("POST /v1/runs", handlers.HandleCreateRun)
	mux.HandleFunc("GET /v1/runs/{id}", handlers.HandleGetRun)
	mux.HandleFunc("POST /v1/runs/{id}/cancel", handlers.HandleCancelRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", handlers.HandleEvents)
	mux.HandleFunc("POST /v1/world-architect/runs", handlers.HandleStartArchitect)
	mux.HandleFunc("POST /v1/world-architect/runs/{id}/answers", handlers.HandleSubmitAnswers)

	var handler http.Handler = mux
	handler = log.HTTP(ctx)(handler)

	return &Server{
		handlers: handlers,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
			// No WriteTimeout: event streams stay open until the client
			// disconnects.
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
			BaseContext: func(net.Listener) context.Context { return ctx },
		},
	}
}

// Start serves requests until the server is shut down or fails.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server gracefully, waiting for in-flight requests
// (including open event streams) up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler. Used by tests with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
