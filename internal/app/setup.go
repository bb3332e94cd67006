package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorein/lore/db"
	"github.com/lorein/lore/internal/chat"
	"github.com/lorein/lore/internal/config"
	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/database"
	"github.com/lorein/lore/internal/ingest"
	"github.com/lorein/lore/internal/log"
	"github.com/lorein/lore/internal/rag"
	"github.com/lorein/lore/internal/session"
	"github.com/lorein/lore/internal/tracker"
)

// Setup builds the full application from a validated config. On failure,
// resources initialized so far are released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	sqliteDB, err := database.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	a.SQLite = sqliteDB
	if err := database.Migrate(sqliteDB); err != nil {
		return nil, err
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	a.Sessions = session.NewStore(sqliteDB, logger)
	a.Tracker = tracker.New(sqliteDB, logger)
	a.Corpus = corpus.New(pool, embedder, logger)

	a.Retriever = rag.NewRetriever(a.Corpus, cfg.TopK, cfg.MinScore, logger)
	a.Generator = rag.NewGenerator(g, rag.GeneratorConfig{
		ModelName:    cfg.FullModelName(),
		SystemPrompt: chat.SystemPrompt,
		Temperature:  cfg.Temperature,
	}, logger)
	a.Orchestrator = chat.New(a.Sessions, a.Retriever, a.Generator, logger)

	configDir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	a.Ingestor = ingest.NewIngestor(ingest.NewRegistry(), a.Tracker, a.Corpus, ingest.Config{
		ChunkSize: cfg.ChunkSize,
		LockPath:  filepath.Join(configDir, "ingest.lock"),
	}, logger)

	return a, nil
}

// providePool migrates the corpus schema, then opens and pings the pgvector
// connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running corpus migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit for the configured provider and returns
// the embedder the corpus store will use. Ollama needs explicit model and
// embedder registration; Google AI models resolve by name.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder := ollama.Embedder(g, cfg.OllamaHost)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
		}
		logger.Info("initialized genkit", "provider", cfg.Provider,
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, embedder, nil

	case config.ProviderGemini, config.ProviderGoogleAI:
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with googleai provider")
		}
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
		}
		logger.Info("initialized genkit", "provider", cfg.Provider, "model", cfg.ModelName)
		return g, embedder, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}
