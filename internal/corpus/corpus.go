// Package corpus stores document chunks and their embeddings in PostgreSQL
// with pgvector, and answers similarity searches over them.
package corpus

import "time"

// VectorDimension is the embedding width the documents schema declares.
// The configured embedder must produce vectors of exactly this size.
const VectorDimension = 768

// Document is one stored corpus chunk.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Passage is a retrieved chunk with its similarity score in [0, 1].
type Passage struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
