// Package rag provides the two halves of retrieval-augmented generation:
// a Retriever that finds relevant corpus passages for a query, and a
// Generator that streams model output for a prompt.
package rag

import "errors"

// Sentinel errors wrapping backend failures. Check with errors.Is().
var (
	// ErrRetrieval indicates the vector search backend failed.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration indicates the model backend failed.
	ErrGeneration = errors.New("generation failed")
)
