package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/lorein/lore/internal/ingest"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/tracker"
)

// Ingester runs the ingestion pipeline. *ingest.Ingestor satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, path string) (*ingest.Result, error)
}

// FilesHandler serves the ingestion and tracked-file endpoints.
type FilesHandler struct {
	tracker  *tracker.Tracker
	ingestor Ingester
	logger   log.Logger
}

func NewFilesHandler(tr *tracker.Tracker, ingestor Ingester, logger log.Logger) *FilesHandler {
	return &FilesHandler{tracker: tr, ingestor: ingestor, logger: logger}
}

// RegisterRoutes registers file routes on the given mux.
func (h *FilesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/files", h.list)
	mux.HandleFunc("POST /api/ingest", h.ingest)
}

// list returns tracked files, optionally filtered with ?indexed=true|false.
func (h *FilesHandler) list(w http.ResponseWriter, r *http.Request) {
	var indexed *bool
	switch r.URL.Query().Get("indexed") {
	case "":
	case "true":
		v := true
		indexed = &v
	case "false":
		v := false
		indexed = &v
	default:
		writeError(w, http.StatusBadRequest, "invalid_filter", "indexed must be true or false")
		return
	}

	files, err := h.tracker.ListFiles(r.Context(), indexed)
	if err != nil {
		h.logger.Error("failed to list tracked files", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"total": len(files),
	})
}

// IngestRequest is the request body for the ingest endpoint.
type IngestRequest struct {
	Path string `json:"path"`
}

func (h *FilesHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path is required")
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), req.Path)
	switch {
	case errors.Is(err, ingest.ErrLocked):
		writeError(w, http.StatusConflict, "ingest_locked", err.Error())
	case errors.Is(err, ingest.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "unsupported_type", err.Error())
	case errors.Is(err, os.ErrNotExist):
		writeError(w, http.StatusNotFound, "not_found", "path does not exist")
	case err != nil:
		h.logger.Error("ingest failed", "path", req.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "ingest failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
