package menuindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/54b3r/waiterbot-go/internal/rag"
)

const (
	// memoryCollection is the chromem collection holding menu entries.
	memoryCollection = "menu"
	// seqKey is the metadata key recording first-insertion order.
	seqKey = "seq"
)

// Memory is an in-process Index backed by a chromem-go collection.
// Similarity is cosine; equal scores are ordered by first insertion.
// Contents are lost when the process exits.
type Memory struct {
	embedder rag.Embedder

	mu   sync.RWMutex
	db   *chromem.DB
	col  *chromem.Collection
	seqs map[string]int
	next int
}

var _ Index = (*Memory)(nil)

// NewMemory returns an empty in-process index that embeds queries with e.
func NewMemory(e rag.Embedder) (*Memory, error) {
	m := &Memory{embedder: e, db: chromem.NewDB()}
	if err := m.reset(); err != nil {
		return nil, err
	}
	return m, nil
}

// embeddingFunc adapts the embedder to chromem's EmbeddingFunc. Entries are
// always added with a precomputed vector, so chromem only calls it if a
// caller queries by text through the collection directly.
func (m *Memory) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return rag.EmbedOne(ctx, m.embedder, text)
	}
}

// reset drops and recreates the collection. Callers hold m.mu or are the
// constructor.
func (m *Memory) reset() error {
	if m.col != nil {
		if err := m.db.DeleteCollection(memoryCollection); err != nil {
			return fmt.Errorf("menuindex: drop collection: %w", err)
		}
	}
	col, err := m.db.GetOrCreateCollection(memoryCollection, nil, m.embeddingFunc())
	if err != nil {
		return fmt.Errorf("menuindex: create collection: %w", err)
	}
	m.col = col
	m.seqs = make(map[string]int)
	m.next = 0
	return nil
}

// Add inserts or replaces the entry for id. A replaced entry keeps its
// original insertion position.
func (m *Memory) Add(ctx context.Context, id string, vector []float32, text string) error {
	if err := validateAdd(id, vector); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, ok := m.seqs[id]
	if !ok {
		seq = m.next
		m.next++
	}
	err := m.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  map[string]string{seqKey: strconv.Itoa(seq)},
		Embedding: vector,
		Content:   text,
	})
	if err != nil {
		return fmt.Errorf("menuindex: add %q: %w", id, err)
	}
	m.seqs[id] = seq
	return nil
}

// Count returns the number of entries.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.col.Count(), nil
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset()
}

// Query embeds text and returns up to k entries ranked by cosine similarity.
// An empty index or a non-positive k yields no passages without calling the
// embedder.
func (m *Memory) Query(ctx context.Context, text string, k int) ([]rag.Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	n := m.col.Count()
	m.mu.RUnlock()
	if n == 0 {
		return nil, nil
	}

	vec, err := rag.EmbedOne(ctx, m.embedder, text)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	n = m.col.Count()
	if n == 0 {
		return nil, nil
	}
	// Rank the whole collection so ties can be settled by insertion order
	// before truncating to k.
	results, err := m.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("menuindex: query: %w", err)
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return seqOf(results[i]) < seqOf(results[j])
	})
	if len(results) > k {
		results = results[:k]
	}

	passages := make([]rag.Passage, len(results))
	for i, r := range results {
		passages[i] = rag.Passage{ID: r.ID, Text: r.Content, Score: r.Similarity}
	}
	return passages, nil
}

func seqOf(r chromem.Result) int {
	n, err := strconv.Atoi(r.Metadata[seqKey])
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
