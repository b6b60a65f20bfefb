// Package api exposes the workflow engine over REST and SSE.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/studioflow/orchestrator/internal/engine"
	"github.com/studioflow/orchestrator/internal/event"
)

// Server is the thin HTTP glue over the session manager.
type Server struct {
	manager *engine.Manager
	logger  *zap.SugaredLogger
}

func NewServer(manager *engine.Manager, logger *zap.SugaredLogger) *Server {
	return &Server{manager: manager, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("POST /api/sessions/{id}/decide", s.handleDecide)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/sessions/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/sessions/{id}/outputs", s.handleOutputs)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type createRequest struct {
	Brief string             `json:"brief"`
	Trust map[string]float64 `json:"trust"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	id, err := s.manager.Create(req.Brief, req.Trust)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyBrief) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		s.logger.Errorw("session create failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "create failed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": id})
}

type decideRequest struct {
	Action   string `json:"action"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.manager.Snapshot(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session"})
		return
	}

	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	if !s.manager.Decide(id, req.Action, req.Feedback) {
		writeJSON(w, http.StatusConflict, map[string]any{"applied": false, "error": "no pending decision"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.manager.Snapshot(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	outputs, ok := s.manager.Outputs(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, outputs)
}

// handleEvents streams a session's events as SSE, flushing per event.
// Reconnecting clients get the recovery replay from the bus; keep-alive
// events go out as SSE comments.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, ok := s.manager.Events(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown session"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		evt, err := sub.Next(r.Context())
		if err != nil {
			// Terminal event consumed or the client went away.
			return
		}

		if evt.Kind == event.KindKeepAlive {
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
			continue
		}

		data, err := json.Marshal(evt)
		if err != nil {
			s.logger.Warnw("event marshal failed", "session_id", id, "kind", evt.Kind, "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
		flusher.Flush()

		if evt.Terminal() {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
