package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/lorein/lore/internal/log"
)

// undefinedTable is the PostgreSQL error code raised when the documents
// table does not exist yet. Searching an unmigrated corpus is treated as
// searching an empty one.
const undefinedTable = "42P01"

// searchTimeout bounds a single similarity query.
const searchTimeout = 10 * time.Second

// Querier is the subset of pgxpool.Pool the store needs.
// Defined here, by the consumer, so tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages corpus documents with vector search.
// It embeds content through the configured embedder and queries PostgreSQL
// with pgvector cosine distance. Safe for concurrent use.
type Store struct {
	db       Querier
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a corpus store.
func New(db Querier, embedder ai.Embedder, logger log.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Add embeds a chunk and upserts it into the corpus.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %q: %w", doc.ID, err)
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (id, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     metadata = EXCLUDED.metadata`,
		doc.ID, doc.Content, pgvector.NewVector(embedding), metadataJSON, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("document added", "id", doc.ID, "content_length", len(doc.Content))
	return nil
}

// Search returns up to topK passages most similar to the query, ordered by
// similarity descending. Scores are cosine similarity mapped to [0, 1].
//
// A corpus whose documents table has never been created yields no results
// rather than an error; every other backend failure is returned as-is.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		return []Passage{}, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.db.Query(queryCtx,
		`SELECT content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM documents
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), topK,
	)
	if err != nil {
		if isUndefinedTable(err) {
			s.logger.Debug("documents table missing, treating corpus as empty")
			return []Passage{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	passages := []Passage{}
	for rows.Next() {
		var content string
		var metadataJSON []byte
		var similarity float64
		if err := rows.Scan(&content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}

		var metadata map[string]string
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				s.logger.Warn("failed to parse document metadata", "error", err)
				metadata = nil
			}
		}

		passages = append(passages, Passage{
			Text:     content,
			Score:    similarity,
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			s.logger.Debug("documents table missing, treating corpus as empty")
			return []Passage{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return passages, nil
}

// Count returns the number of stored documents.
// A missing documents table counts as zero.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

// Delete removes a document by id. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", id, err)
	}
	s.logger.Debug("document deleted", "id", id)
	return nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, errors.New("embedder returned an empty embedding")
	}
	return resp.Embeddings[0].Embedding, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
