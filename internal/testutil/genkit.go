package testutil

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitSetup bundles a Genkit instance with its registered mock model and
// embedder, ready for rag and chat tests.
type GenkitSetup struct {
	Genkit   *genkit.Genkit
	LLM      *MockLLM
	Model    ai.Model
	Embedder *MockEmbedder
	Emb      ai.Embedder
}

// SetupGenkit initializes Genkit with a mock model and embedder.
// The model falls back to the given response when no pattern matches.
func SetupGenkit(t *testing.T, fallback string, dim int) *GenkitSetup {
	t.Helper()

	g := genkit.Init(context.Background())

	llm := NewMockLLM(fallback)
	embedder := NewMockEmbedder(dim)

	return &GenkitSetup{
		Genkit:   g,
		LLM:      llm,
		Model:    llm.RegisterModel(g),
		Embedder: embedder,
		Emb:      embedder.RegisterEmbedder(g),
	}
}
