package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mfersafe-core/internal/supervisor"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/node", func(r chi.Router) {
				r.Get("/args", s.handleGetNodeArgs)
				r.Post("/restart", s.handleRestartNode)
				r.Get("/status", s.handleNodeStatus)
				r.Get("/logs", s.handleNodeLogs)
				r.Get("/restarts", s.handleListRestarts)
			})
		})
	})

	return r
}

// componentHealth is one entry of the /health response.
type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports the node state and every configured component.
// A failing component or a node left in the failed state marks the
// response degraded with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()

	status := "ok"
	if stats.Status == supervisor.StatusFailed {
		status = "degraded"
	}
	components := map[string]componentHealth{}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			status = "degraded"
			components[name] = componentHealth{Status: "error", Error: err.Error()}
			continue
		}
		components[name] = componentHealth{Status: "ok"}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":      status,
		"version":     s.version,
		"node_status": stats.Status,
		"components":  components,
	})
}
