// Package menuindex provides the nearest-neighbour index over menu item
// embeddings used by the query handler. Two backends implement Index: an
// in-process chromem-go collection (memory) and a Qdrant collection (qdrant).
package menuindex

import (
	"context"
	"fmt"

	"github.com/54b3r/waiterbot-go/internal/rag"
)

// Backend names accepted by INDEX_BACKEND.
const (
	BackendMemory = "memory"
	BackendQdrant = "qdrant"
)

// Index is a nearest-neighbour collection keyed by menu item id.
// Implementations must be safe for concurrent use.
type Index interface {
	// Add inserts or replaces the entry for id.
	Add(ctx context.Context, id string, vector []float32, text string) error
	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Query embeds text and returns up to k entries, most similar first.
	Query(ctx context.Context, text string, k int) ([]rag.Passage, error)
}

// validateAdd rejects entries that can never be queried.
func validateAdd(id string, vector []float32) error {
	if id == "" {
		return fmt.Errorf("menuindex: empty id")
	}
	if len(vector) == 0 {
		return fmt.Errorf("menuindex: empty vector for %q", id)
	}
	return nil
}
