// Package api exposes the chat, session and ingestion functionality over
// HTTP.
//
// Endpoints:
//
//	GET    /health                   liveness probe
//	GET    /ready                    readiness probe (storage ping)
//	GET    /api/sessions             list sessions
//	POST   /api/sessions             create session
//	GET    /api/sessions/{id}        export transcript (?format=json|text)
//	PATCH  /api/sessions/{id}        rename session
//	DELETE /api/sessions/{id}        delete session
//	DELETE /api/sessions             delete all sessions (?confirm=true)
//	POST   /api/chat                 one buffered chat turn
//	POST   /api/chat/stream          one chat turn as SSE
//	POST   /api/ingest               ingest a file or directory
//	GET    /api/files                list tracked files (?indexed=)
package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/session"
	"github.com/lorein/lore/internal/tracker"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to block Slowloris-style
	// connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because chat streaming holds the response
	// open while the model generates.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout caps keep-alive connection idleness.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	sessions *SessionHandler
	chat     *ChatHandler
	files    *FilesHandler
}

// Deps carries everything the handlers need.
type Deps struct {
	Sessions     *session.Store
	Tracker      *tracker.Tracker
	Orchestrator Asker
	Ingestor     Ingester
	Pool         *pgxpool.Pool
	SQLite       *sql.DB
	Logger       log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:      mux,
		logger:   logger,
		health:   NewHealthHandler(deps.Pool, deps.SQLite, logger),
		sessions: NewSessionHandler(deps.Sessions, logger),
		chat:     NewChatHandler(deps.Orchestrator, logger),
		files:    NewFilesHandler(deps.Tracker, deps.Ingestor, logger),
	}

	s.health.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.files.RegisterRoutes(mux)
	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery, then logging, then the mux.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
