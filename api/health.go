package api

import (
	"database/sql"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorein/lore/internal/log"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	pool   *pgxpool.Pool
	sqlite *sql.DB
	logger log.Logger
}

func NewHealthHandler(pool *pgxpool.Pool, sqlite *sql.DB, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, sqlite: sqlite, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 whenever the process is serving.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness pings both stores; a failing dependency yields 503.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil || h.sqlite == nil {
		http.Error(w, "storage not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "store", "corpus", "error", err)
		http.Error(w, "corpus store not ready", http.StatusServiceUnavailable)
		return
	}
	if err := h.sqlite.PingContext(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "store", "transcripts", "error", err)
		http.Error(w, "transcript store not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
