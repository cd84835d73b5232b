// Package webapi exposes the session/run REST surface backing the WebSocket
// protocol: session CRUD, run creation, and message replay.
package webapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/magneticlabs/surfbench/internal/store"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	store SessionStore
}

// NewHandlers creates a new Handlers with the given store.
func NewHandlers(s SessionStore) *Handlers {
	return &Handlers{store: s}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleCreateSession creates a session for a user.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	sess, err := h.store.CreateSession(req.UserID, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleListSessions lists the sessions owned by the user_id query parameter.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	sessions, err := h.store.ListSessions(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandleGetSession returns one session with its runs.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.GetSession(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// HandleRenameSession updates a session's display name.
func (h *Handlers) HandleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.store.RenameSession(r.PathValue("id"), req.Name); err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteSession deletes a session, cascading to its runs and messages.
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSession(r.PathValue("id")); err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateRun creates a run under a session.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	sess, err := h.store.GetSession(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "session not found")
		return
	}

	run, err := h.store.CreateRun(sess.ID, sess.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// HandleListRuns lists a session's runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetSession(r.PathValue("id")); err != nil {
		writeStoreError(w, err, "session not found")
		return
	}
	runs, err := h.store.ListRuns(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleGetRun returns one run.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleListMessages returns a run's messages in emission order, so a client
// can replay history after reconnecting.
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.GetRun(r.PathValue("id")); err != nil {
		writeStoreError(w, err, "run not found")
		return
	}
	msgs, err := h.store.ListMessages(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// RegisterRoutes registers all web API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, s SessionStore) {
	h := NewHandlers(s)
	mux.HandleFunc("GET /api/health", h.HandleHealth)
	mux.HandleFunc("POST /api/sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions", h.HandleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.HandleRenameSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/runs", h.HandleCreateRun)
	mux.HandleFunc("GET /api/sessions/{id}/runs", h.HandleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", h.HandleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/messages", h.HandleListMessages)
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMsg)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
