package operator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zombor/rma-receiver/internal/folder"
	"github.com/zombor/rma-receiver/internal/history"
	"github.com/zombor/rma-receiver/internal/screen"
	"github.com/zombor/rma-receiver/internal/session"
	"github.com/zombor/rma-receiver/internal/terminal"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// errorResponse is the body of every failed API call. Status is included when
// the session still has something to show.
type errorResponse struct {
	Error  string          `json:"error"`
	Status *session.Status `json:"status,omitempty"`
}

// statusCode maps session errors to HTTP status codes
func statusCode(err error) int {
	switch {
	case errors.Is(err, folder.ErrMalformedRMA):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoSession), errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotInExpectedScreen),
		errors.Is(err, session.ErrRMANotOpen),
		errors.Is(err, screen.ErrFieldNotFound),
		errors.Is(err, terminal.ErrPaginationRunaway):
		return http.StatusUnprocessableEntity
	case errors.Is(err, terminal.ErrWindowNotFound):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrControllerStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as JSON, attaching status when it names a session
func writeError(w http.ResponseWriter, err error, status *session.Status) {
	setCORSHeaders(w)
	if status != nil && status.ID == "" {
		status = nil
	}
	writeJSON(w, statusCode(err), errorResponse{Error: err.Error(), Status: status})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleHealthcheck reports that the process is up
func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetSession returns the current session status
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.controller.Status(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStartSession starts a session for an RMA
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RMA     string `json:"rma"`
		Damaged bool   `json:"damaged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		setCORSHeaders(w)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	status, err := s.controller.Start(r.Context(), req.RMA, req.Damaged)
	if err != nil {
		slog.Error("Error starting session", "rma", req.RMA, "error", err)
		writeError(w, err, &status)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

// handleAdvance processes the next serial number
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	item, status, err := s.controller.Advance(r.Context())
	if err != nil {
		slog.Error("Error advancing session", "error", err)
		writeError(w, err, &status)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Item   *session.ItemResult `json:"item"`
		Status session.Status      `json:"status"`
	}{Item: item, Status: status})
}

// handleSetDamaged toggles the damaged flag
func (s *Server) handleSetDamaged(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Damaged *bool `json:"damaged"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Damaged == nil {
		setCORSHeaders(w)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	status, err := s.controller.SetDamaged(r.Context(), *req.Damaged)
	if err != nil {
		writeError(w, err, &status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAbortSession stops the current session
func (s *Server) handleAbortSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.controller.Abort(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleListHistorySessions returns every recorded session
func (s *Server) handleListHistorySessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.history.ListSessions()
	if err != nil {
		slog.Error("Error listing sessions", "error", err)
		writeError(w, err, nil)
		return
	}

	// Ensure we always return an array, not nil
	if sessions == nil {
		sessions = []*history.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// handleGetHistorySession returns a recorded session with its items
func (s *Server) handleGetHistorySession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.history.GetSession(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	items, err := s.history.ListItems(id)
	if err != nil {
		slog.Error("Error listing items", "session_id", id, "error", err)
		writeError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"items":   items,
	})
}
