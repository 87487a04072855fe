package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/mfersafe-core/internal/history"
	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
	"github.com/nerrad567/mfersafe-core/internal/supervisor"
)

const (
	// defaultLogLines is returned by /node/logs without ?n=.
	defaultLogLines = 200
)

// restartResponse is the body of POST /node/restart.
type restartResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleGetNodeArgs returns the installed node config.
func (s *Server) handleGetNodeArgs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Inspect())
}

// handleRestartNode replaces the running node with the posted config.
//
// Malformed or invalid configs are rejected with 400 before the node is
// touched. Every other outcome is a 200 carrying success and, on failure,
// the reason; the previous config is back in place in that case.
func (s *Server) handleRestartNode(w http.ResponseWriter, r *http.Request) {
	cfg, err := nodeconfig.Decode(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, restartResponse{Error: err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, restartResponse{Error: err.Error()})
		return
	}

	// A client hanging up must not abort a restart halfway.
	ctx := supervisor.WithSource(context.WithoutCancel(r.Context()), supervisor.SourceAPI)

	if err := s.node.Restart(ctx, cfg); err != nil {
		s.logger.Warn("restart request failed",
			"error", err,
			"subject", r.Context().Value(ctxKeySubject),
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeJSON(w, http.StatusOK, restartResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, restartResponse{Success: true})
}

// handleNodeStatus returns the supervisor and sink snapshot.
func (s *Server) handleNodeStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Stats())
}

// handleNodeLogs returns up to ?n= recent events, oldest first.
func (s *Server) handleNodeLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "log buffer not configured")
		return
	}

	n := defaultLogLines
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeBadRequest(w, "n must be a non-negative integer")
			return
		}
		n = v
	}

	lines := s.logs.Recent(n)
	writeJSON(w, http.StatusOK, map[string]any{
		"lines": lines,
		"count": len(lines),
	})
}

// handleListRestarts returns a page of restart history.
func (s *Server) handleListRestarts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "restart history not configured")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Source:     q.Get("source"),
		FailedOnly: q.Get("failed") == "true",
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing restart history", "error", err)
		writeInternalError(w, "failed to list restart history")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	return v, nil
}
