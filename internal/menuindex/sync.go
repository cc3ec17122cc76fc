package menuindex

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// Syncer keeps an Index in step with the embedding store. Concurrent Sync
// calls on the same Syncer are serialised, and Query never observes an index
// that is halfway through a rebuild.
type Syncer struct {
	mu     sync.RWMutex
	index  Index
	source store.EmbeddingStore
	log    *slog.Logger

	// OnResync, when set, is called after every rebuild with the new count.
	OnResync func(count int)
}

// NewSyncer returns a Syncer that rebuilds index from source.
func NewSyncer(index Index, source store.EmbeddingStore, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{index: index, source: source, log: log}
}

// Query returns up to k entries most similar to text. It waits for any
// rebuild in progress to finish.
func (s *Syncer) Query(ctx context.Context, text string, k int) ([]rag.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Query(ctx, text, k)
}

// Upsert writes rec into the index so a replaced menu item is served
// without waiting for the counts to diverge.
func (s *Syncer) Upsert(ctx context.Context, rec store.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Add(ctx, rec.ID, rec.Vector, rec.Text); err != nil {
		return fmt.Errorf("menuindex: upsert: %w", err)
	}
	return nil
}

// Sync compares the index and store counts. When they differ the index is
// cleared and rebuilt from every store record. It reports whether a rebuild
// happened.
//
// Equal counts are trusted: an update that replaces one record leaves the
// counts equal, and is picked up only through Upsert or when the counts
// later diverge.
func (s *Syncer) Sync(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexed, err := s.index.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("menuindex: sync: %w", err)
	}
	stored, err := s.source.CountEmbeddings(ctx)
	if err != nil {
		return false, fmt.Errorf("menuindex: sync: %w", err)
	}
	if indexed == stored {
		return false, nil
	}

	s.log.Info("menuindex: resyncing", "indexed", indexed, "stored", stored)
	recs, err := s.source.Embeddings(ctx)
	if err != nil {
		return false, fmt.Errorf("menuindex: sync: %w", err)
	}
	if err := s.index.Clear(ctx); err != nil {
		return false, fmt.Errorf("menuindex: sync: %w", err)
	}
	for _, rec := range recs {
		if err := s.index.Add(ctx, rec.ID, rec.Vector, rec.Text); err != nil {
			return false, fmt.Errorf("menuindex: sync: %w", err)
		}
	}

	count, err := s.index.Count(ctx)
	if err != nil {
		return true, fmt.Errorf("menuindex: sync: %w", err)
	}
	s.log.Info("menuindex: resync complete", "count", count)
	if s.OnResync != nil {
		s.OnResync(count)
	}
	return true, nil
}
