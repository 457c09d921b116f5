// Package api implements the HTTP transport of spec.md §6: the Workflow
// management API, Execution API (including SSE streaming), Chat API, and
// Quota endpoint, routed with github.com/go-chi/chi/v5 the way the
// teacher-adjacent pack's pkg/server wires its handlers, behind the
// Auth/Logging middleware chain in internal/api/middleware.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/toolforge/agentgraph/internal/api/middleware"
	"github.com/toolforge/agentgraph/internal/engine"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/execution"
	"github.com/toolforge/agentgraph/internal/session"
	"github.com/toolforge/agentgraph/internal/skill"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// Deps bundles every service the HTTP layer calls into, assembled once by
// cmd/server's composition root.
type Deps struct {
	Workflows  *workflow.Store
	Skills     *skill.Registry
	Sessions   *session.Store
	Executions *execution.Store
	Runner     *execution.Runner
	Hub        *emit.Hub
	Engine     *engine.Engine
	Auth       *middleware.Validator
	Log        *zap.Logger

	QuotaDefaultPerDay int
}

// NewRouter builds the full route tree behind the Logging and Auth
// middleware chain.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(d.Log))
	r.Use(middleware.Auth(d.Auth))

	h := &handlers{Deps: d}

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.createWorkflow)
		r.Get("/", h.listWorkflows)
		r.Get("/{id}", h.getWorkflow)
		r.Put("/{id}", h.updateWorkflow)
		r.Delete("/{id}", h.deleteWorkflow)
		r.Post("/{id}/fork", h.forkWorkflow)
		r.Post("/{id}/revert", h.revertWorkflow)
		r.Get("/{id}/versions", h.listVersions)
		r.Get("/{id}/versions/compare", h.compareVersions)
	})

	r.Route("/executions", func(r chi.Router) {
		r.Post("/run", h.runExecution)
		r.Get("/", h.listExecutions)
		r.Get("/{id}", h.getExecution)
		r.Post("/{id}/cancel", h.cancelExecution)
	})

	r.Route("/agents/{workflowID}/chat", func(r chi.Router) {
		r.Post("/", h.chat)
	})
	r.Route("/sessions/{id}/messages", func(r chi.Router) {
		r.Get("/", h.listMessages)
		r.Delete("/", h.clearMessages)
	})

	r.Get("/users/me/usage", h.usage)

	return r
}

type handlers struct {
	*Deps
}

// Server wraps an http.Server with graceful shutdown, following the
// teacher-adjacent pack's pkg/server.HTTPServer Start/Shutdown shape.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

func NewServer(addr string, handler http.Handler, log *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
