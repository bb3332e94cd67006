package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/lorein/lore/internal/corpus"
	"github.com/lorein/lore/internal/log"
)

// Searcher is the corpus capability the retriever needs.
// *corpus.Store satisfies it; tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]corpus.Passage, error)
}

// Retriever finds the corpus passages most relevant to a query.
// It is stateless between calls and safe for concurrent use.
type Retriever struct {
	store    Searcher
	topK     int
	minScore float64
	logger   log.Logger
}

// NewRetriever creates a retriever.
// topK bounds how many passages a search may return (0 disables retrieval);
// minScore in [0, 1] is the similarity floor below which passages are
// discarded.
func NewRetriever(store Searcher, topK int, minScore float64, logger log.Logger) *Retriever {
	return &Retriever{store: store, topK: topK, minScore: minScore, logger: logger}
}

// Retrieve returns up to topK passages scoring at least minScore, ordered by
// score descending. Ties keep the backend's order. An empty or missing
// corpus yields an empty result, not an error; backend failures wrap
// ErrRetrieval and are returned without retry.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]corpus.Passage, error) {
	if r.topK <= 0 {
		return []corpus.Passage{}, nil
	}

	passages, err := r.store.Search(ctx, query, r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	filtered := make([]corpus.Passage, 0, len(passages))
	for _, p := range passages {
		if p.Score >= r.minScore {
			filtered = append(filtered, p)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	r.logger.Debug("retrieved passages",
		"query_length", len(query),
		"candidates", len(passages),
		"kept", len(filtered),
		"min_score", r.minScore,
	)

	return filtered, nil
}
