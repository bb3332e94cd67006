// Package app wires configuration, storage, AI provider and domain
// components into a running application container.
package app

import (
	"database/sql"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorein/lore/internal/chat"
	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/ingest"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/rag"
	"github.com/lorein/lore/internal/session"
	"github.com/lorein/lore/internal/tracker"
)

// App is the application container. Build one with Setup and release its
// resources with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	// SQLite holds transcripts and the ingestion tracker; Pool is the
	// pgvector corpus.
	SQLite *sql.DB
	Pool   *pgxpool.Pool

	Sessions     *session.Store
	Tracker      *tracker.Tracker
	Corpus       *corpus.Store
	Retriever    *rag.Retriever
	Generator    *rag.Generator
	Orchestrator *chat.Orchestrator
	Ingestor     *ingest.Ingestor
}

// Close releases storage resources. Safe to call on a partially built App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			return err
		}
	}
	return nil
}
