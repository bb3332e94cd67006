package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/lorein/lore/internal/chat"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/rag"
	"github.com/lorein/lore/internal/session"
)

// Asker runs one conversational turn. *chat.Orchestrator satisfies it.
type Asker interface {
	Ask(ctx context.Context, sessionID int64, query string, emit func(chat.Event) error) (*chat.Turn, error)
}

// ChatHandler serves the buffered and streaming chat endpoints.
type ChatHandler struct {
	orchestrator Asker
	logger       log.Logger
}

func NewChatHandler(orchestrator Asker, logger log.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.ask)
	mux.HandleFunc("POST /api/chat/stream", h.stream)
}

// ChatRequest is the request body for both chat endpoints.
type ChatRequest struct {
	SessionID int64  `json:"session_id"`
	Query     string `json:"query"`
}

// ask runs a turn in buffered mode and returns the completed Turn.
func (h *ChatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	turn, err := h.orchestrator.Ask(r.Context(), req.SessionID, req.Query, nil)
	if err != nil {
		status, code := chatErrorStatus(err)
		h.logger.Error("chat turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// stream runs a turn and relays its events as Server-Sent Events. The SSE
// event name mirrors the turn event type; the data payload is the JSON
// encoded event.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var wrote bool
	emit := func(e chat.Event) error {
		if err := r.Context().Err(); err != nil {
			return err
		}
		wrote = true
		writeSSE(w, flusher, e)
		return nil
	}

	if _, err := h.orchestrator.Ask(r.Context(), req.SessionID, req.Query, emit); err != nil {
		// Failures after the stream started already carried their own error
		// event through emit; pre-stream failures never reached it, so
		// surface them here to keep the stream uniformly terminated.
		if !wrote {
			writeSSE(w, flusher, chat.Event{Type: chat.EventError, Err: err.Error()})
		}
		h.logger.Error("chat stream failed", "session_id", req.SessionID, "error", err)
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, e chat.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
	flusher.Flush()
}

// chatErrorStatus maps orchestrator errors to HTTP statuses.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuery):
		return http.StatusBadRequest, "empty_query"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, rag.ErrRetrieval):
		return http.StatusBadGateway, "retrieval_failed"
	case errors.Is(err, rag.ErrGeneration):
		return http.StatusBadGateway, "generation_failed"
	case errors.Is(err, chat.ErrPersistence):
		return http.StatusInternalServerError, "persistence_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
