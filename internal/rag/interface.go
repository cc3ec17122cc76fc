// Package rag defines the shared vocabulary of the retrieval-augmented
// generation path: the Embedder contract every embedding backend satisfies,
// the Passage returned by retrieval, and the UpstreamError used to mark
// failures of external model APIs.
package rag

import (
	"context"
	"fmt"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Passage is a menu text retrieved for a question.
type Passage struct {
	// ID is the menu item id the passage was indexed under.
	ID string
	// Text is the flattened menu item text.
	Text string
	// Score is the cosine similarity to the question (higher is closer).
	Score float32
}

// Texts returns the passage texts in order.
func Texts(passages []Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Text
	}
	return out
}

// EmbedOne embeds a single text. Failures of the embedding backend are
// wrapped in an UpstreamError.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, Upstream("embedding", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, Upstream("embedding", fmt.Errorf("expected 1 non-empty vector, got %d", len(vecs)))
	}
	return vecs[0], nil
}
