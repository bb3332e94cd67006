package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
)

// SessionHandler serves the session CRUD and export endpoints.
type SessionHandler struct {
	store  *session.Store
	logger log.Logger
}

func NewSessionHandler(store *session.Store, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", h.list)
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("DELETE /api/sessions", h.deleteAll)
	mux.HandleFunc("GET /api/sessions/{id}", h.export)
	mux.HandleFunc("PATCH /api/sessions/{id}", h.rename)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.delete)
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	title := req.Title
	if title != "" {
		validated, err := session.ValidateTitle(title)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_title", err.Error())
			return
		}
		title = validated
	}

	sess, err := h.store.Create(r.Context(), title)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", session.FormatJSON, session.FormatText:
	default:
		writeError(w, http.StatusBadRequest, "invalid_format", "format must be json or text")
		return
	}

	data, err := h.store.Export(r.Context(), id, format)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("failed to export session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to export session")
		return
	}

	if format == session.FormatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// RenameSessionRequest is the request body for renaming a session.
type RenameSessionRequest struct {
	Title string `json:"title"`
}

func (h *SessionHandler) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	err := h.store.Rename(r.Context(), id, req.Title)
	switch {
	case errors.Is(err, session.ErrInvalidTitle):
		writeError(w, http.StatusBadRequest, "invalid_title", err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case err != nil:
		h.logger.Error("failed to rename session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to rename session")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "session not found")
	case err != nil:
		h.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete session")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// deleteAll removes every session. The irreversible bulk delete demands an
// explicit confirm=true query parameter.
func (h *SessionHandler) deleteAll(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeError(w, http.StatusBadRequest, "confirmation_required",
			"deleting all sessions requires confirm=true")
		return
	}

	deleted, err := h.store.DeleteAll(r.Context())
	if err != nil {
		h.logger.Error("failed to delete all sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a positive integer")
		return 0, false
	}
	return id, true
}
