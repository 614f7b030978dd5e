// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tenon/internal/controller/handlers"
	"tenon/internal/controller/middleware"
	"tenon/internal/store"
)

// Server is the HTTP server for the candidate-facing API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server. metricsHandler may be nil, in which
// case the /metrics route is not registered.
func New(addr string, svc handlers.Service, sessions store.SessionStore, db handlers.Pinger, log *slog.Logger, metricsHandler http.Handler) *Server {
	h := handlers.New(svc, db, log)
	authMW := middleware.Auth(sessions)

	mux := http.NewServeMux()

	// Claim bootstraps the session; it authenticates by invite token in
	// the body rather than the session header.
	mux.HandleFunc("POST /candidate/claim", h.Claim)

	// Candidate session apis
	mux.Handle("GET /candidate/progress", authMW(http.HandlerFunc(h.Progress)))
	mux.Handle("POST /candidate/tasks/{taskId}/workspace", authMW(http.HandlerFunc(h.InitWorkspace)))
	mux.Handle("GET /candidate/tasks/{taskId}/workspace", authMW(http.HandlerFunc(h.WorkspaceStatus)))
	mux.Handle("POST /candidate/tasks/{taskId}/tests/run", authMW(http.HandlerFunc(h.RunTests)))
	mux.Handle("GET /candidate/tasks/{taskId}/tests/runs/{runId}", authMW(http.HandlerFunc(h.FetchRunResult)))
	mux.Handle("POST /candidate/tasks/{taskId}/submission", authMW(http.HandlerFunc(h.Submit)))

	// Probes and metrics
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: middleware.RequestID(mux),
			// Test runs are polled to completion inside a single request,
			// so the write timeout must exceed the run timeout.
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
	}
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
