package menuindex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/store"
)

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSyncer_RebuildsOnCountMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openStore(t)
	idx := newTestMemory(t, &fakeEmbedder{})

	require.NoError(t, src.PutEmbedding(ctx, store.EmbeddingRecord{ID: "m1", Text: "soup", Vector: []float32{1, 0}}))
	require.NoError(t, src.PutEmbedding(ctx, store.EmbeddingRecord{ID: "m2", Text: "rice", Vector: []float32{0, 1}}))
	// A stale entry that the store no longer agrees with.
	require.NoError(t, idx.Add(ctx, "gone", []float32{1, 1}, "gone"))

	var observed []int
	s := NewSyncer(idx, src, logging.Discard())
	s.OnResync = func(n int) { observed = append(observed, n) }

	resynced, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, resynced)
	assert.Equal(t, []int{2}, observed)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	resynced, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, resynced, "equal counts must not trigger a rebuild")
}

func TestSyncer_EmptyStoreClearsIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	idx := newTestMemory(t, &fakeEmbedder{})
	require.NoError(t, idx.Add(ctx, "a", []float32{1}, "a"))

	resynced, err := NewSyncer(idx, openStore(t), nil).Sync(ctx)
	require.NoError(t, err)
	assert.True(t, resynced)
	n, _ := idx.Count(ctx)
	assert.Zero(t, n)
}

func TestSyncer_ConcurrentCallsConverge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, src.PutEmbedding(ctx, store.EmbeddingRecord{ID: id, Text: id, Vector: []float32{1, 0}}))
	}
	idx := newTestMemory(t, &fakeEmbedder{})
	s := NewSyncer(idx, src, logging.Discard())

	var wg sync.WaitGroup
	var mu sync.Mutex
	rebuilds := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resynced, err := s.Sync(ctx)
			assert.NoError(t, err)
			if resynced {
				mu.Lock()
				rebuilds++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, rebuilds)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// pausingIndex blocks the first Add until release is closed.
type pausingIndex struct {
	Index
	once    sync.Once
	adding  chan struct{}
	release chan struct{}
}

func (p *pausingIndex) Add(ctx context.Context, id string, vector []float32, text string) error {
	p.once.Do(func() {
		close(p.adding)
		<-p.release
	})
	return p.Index.Add(ctx, id, vector, text)
}

func TestSyncer_QueryWaitsForRebuild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openStore(t)
	require.NoError(t, src.PutEmbedding(ctx, store.EmbeddingRecord{ID: "m1", Text: "soup", Vector: []float32{1, 0, 0}}))
	require.NoError(t, src.PutEmbedding(ctx, store.EmbeddingRecord{ID: "m2", Text: "stew", Vector: []float32{1, 1, 0}}))

	mem := newTestMemory(t, &fakeEmbedder{vectors: map[string][]float32{"soup?": {1, 0, 0}}})
	require.NoError(t, mem.Add(ctx, "m1", []float32{1, 0, 0}, "soup"))
	idx := &pausingIndex{Index: mem, adding: make(chan struct{}), release: make(chan struct{})}
	s := NewSyncer(idx, src, logging.Discard())

	synced := make(chan error, 1)
	go func() {
		_, err := s.Sync(ctx)
		synced <- err
	}()
	<-idx.adding

	type result struct {
		passages int
		err      error
	}
	queried := make(chan result, 1)
	go func() {
		got, err := s.Query(ctx, "soup?", 2)
		queried <- result{len(got), err}
	}()

	select {
	case r := <-queried:
		t.Fatalf("query returned %d passages during rebuild", r.passages)
	case <-time.After(50 * time.Millisecond):
	}

	close(idx.release)
	require.NoError(t, <-synced)
	r := <-queried
	require.NoError(t, r.err)
	assert.Equal(t, 2, r.passages)
}

func TestSyncer_UpsertReplacesWithoutResync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openStore(t)
	idx := newTestMemory(t, &fakeEmbedder{vectors: map[string][]float32{"soup?": {1, 0, 0}}})
	s := NewSyncer(idx, src, logging.Discard())

	old := store.EmbeddingRecord{ID: "m1", Text: "Soup 10", Vector: []float32{1, 0, 0}}
	require.NoError(t, src.PutEmbedding(ctx, old))
	_, err := s.Sync(ctx)
	require.NoError(t, err)

	updated := store.EmbeddingRecord{ID: "m1", Text: "Soup 12", Vector: []float32{1, 0, 0}}
	require.NoError(t, src.PutEmbedding(ctx, updated))
	require.NoError(t, s.Upsert(ctx, updated))

	resynced, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, resynced)

	got, err := s.Query(ctx, "soup?", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Soup 12", got[0].Text)
}
