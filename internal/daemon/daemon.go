// Package daemon is the thin HTTP shim over the engine API: start a
// conversation, post a message, fetch state. Authentication, channel
// adapters, and request shaping belong to the external transport layer that
// fronts this endpoint.
package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/engine"
	rderrors "github.com/relaydesk/relaydesk/internal/errors"
	"github.com/relaydesk/relaydesk/internal/logger"
	"github.com/relaydesk/relaydesk/internal/store"
)

type Server struct {
	engine *engine.Engine
	store  store.Store
}

func NewServer(eng *engine.Engine, st store.Store) *Server {
	return &Server{engine: eng, store: st}
}

// Routes registers the engine API on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/conversations", s.startConversation)
	mux.HandleFunc("POST /v1/conversations/{id}/messages", s.postMessage)
	mux.HandleFunc("GET /v1/conversations/{id}", s.getConversation)
}

func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.engine.StartConversation(r.Context(), req.CustomerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"conversation_id": state.ConversationID,
		"session_id":      state.SessionID,
		"status":          state.Status,
	})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
		Message    string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx := logger.WithTraceID(r.Context(), uuid.NewString())
	out, err := s.engine.HandleTurn(ctx, engine.TurnInput{
		ConversationID: r.PathValue("id"),
		CustomerID:     req.CustomerID,
		Message:        req.Message,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"response_text": out.ResponseText,
		"status":        out.Status,
		"handler_type":  out.HandlerType,
		"escalated":     out.Escalated,
	})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case rderrors.IsCategory(err, rderrors.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case rderrors.IsCategory(err, rderrors.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case rderrors.IsRetryable(err):
		// The caller decides whether to retry the whole request.
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error("Turn failed", "error", err, "category", rderrors.Category(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("Response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
