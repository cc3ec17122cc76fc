package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newHandler(t *testing.T, e rag.Embedder, s *store.SQLiteStore, mirror bool) *Handler {
	t.Helper()
	cfg := Config{Embedder: e, Embeddings: s, Logger: logging.Discard()}
	if mirror {
		cfg.Menu = s
	}
	h, err := NewHandler(cfg)
	require.NoError(t, err)
	return h
}

func soup() map[string]any {
	return map[string]any{
		"name":        "Soup",
		"description": "Tomato soup",
		"ingredients": "tomato, salt",
		"price":       "12",
	}
}

func TestFlatten_Template(t *testing.T) {
	t.Parallel()
	got, err := Flatten(soup())
	require.NoError(t, err)
	assert.Equal(t, "Food Name: Soup . Description: Tomato soup . Ingredients: tomato, salt .Price: 12 .", got)
}

func TestFlatten_NumericPrice(t *testing.T) {
	t.Parallel()
	d := soup()
	d["price"] = 12.0
	got, err := Flatten(d)
	require.NoError(t, err)
	assert.Contains(t, got, ".Price: 12 .")

	d["price"] = 8.5
	got, err = Flatten(d)
	require.NoError(t, err)
	assert.Contains(t, got, ".Price: 8.5 .")
}

func TestFlatten_MissingField(t *testing.T) {
	t.Parallel()
	for _, field := range []string{"name", "description", "ingredients", "price"} {
		d := soup()
		delete(d, field)
		_, err := Flatten(d)
		var missing *MissingFieldError
		require.ErrorAs(t, err, &missing, field)
		assert.Equal(t, field, missing.Field)

		d = soup()
		d[field] = nil
		_, err = Flatten(d)
		require.ErrorAs(t, err, &missing, field)
	}
}

func TestHandle_StoresRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	h := newHandler(t, &fakeEmbedder{}, s, false)

	rec, err := h.Handle(ctx, "m1", soup())
	require.NoError(t, err)
	assert.Equal(t, "m1", rec.ID)

	recs, err := s.Embeddings(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "m1", recs[0].ID)
	assert.Equal(t, "Food Name: Soup . Description: Tomato soup . Ingredients: tomato, salt .Price: 12 .", recs[0].Text)
	assert.NotEmpty(t, recs[0].Vector)

	_, err = s.MenuItem(ctx, "m1")
	assert.ErrorIs(t, err, store.ErrNotFound, "menu documents are not mirrored by default")
}

func TestHandle_OverwritesAndMirrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	h := newHandler(t, &fakeEmbedder{}, s, true)

	_, err := h.Handle(ctx, "m1", soup())
	require.NoError(t, err)
	d := soup()
	d["price"] = "14"
	_, err = h.Handle(ctx, "m1", d)
	require.NoError(t, err)

	n, err := s.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	recs, err := s.Embeddings(ctx)
	require.NoError(t, err)
	assert.Contains(t, recs[0].Text, ".Price: 14 .")

	item, err := s.MenuItem(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "14", item.Data["price"])
}

// recordingIndex collects upserted records.
type recordingIndex struct {
	err  error
	recs []store.EmbeddingRecord
}

func (r *recordingIndex) Upsert(_ context.Context, rec store.EmbeddingRecord) error {
	r.recs = append(r.recs, rec)
	return r.err
}

func TestHandle_UpdatesIndexAfterStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	idx := &recordingIndex{}
	h, err := NewHandler(Config{Embedder: &fakeEmbedder{}, Embeddings: s, Index: idx, Logger: logging.Discard()})
	require.NoError(t, err)

	rec, err := h.Handle(ctx, "m1", soup())
	require.NoError(t, err)
	require.Len(t, idx.recs, 1)
	assert.Equal(t, rec, idx.recs[0])

	// An index failure leaves the stored record in place.
	idx.err = errors.New("index down")
	_, err = h.Handle(ctx, "m2", soup())
	require.NoError(t, err)
	n, err := s.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	d := soup()
	delete(d, "price")
	_, err = h.Handle(ctx, "m3", d)
	require.Error(t, err)
	assert.Len(t, idx.recs, 2, "incomplete items never reach the index")
}

func TestHandle_MissingFieldWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	e := &fakeEmbedder{}
	h := newHandler(t, e, s, true)

	d := soup()
	delete(d, "ingredients")
	_, err := h.Handle(ctx, "m1", d)
	var missing *MissingFieldError
	require.ErrorAs(t, err, &missing)
	assert.Zero(t, e.calls)

	n, err := s.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandle_EmbeddingFailureIsUpstream(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	h := newHandler(t, &fakeEmbedder{err: errors.New("boom")}, s, false)

	_, err := h.Handle(context.Background(), "m1", soup())
	require.Error(t, err)
	assert.True(t, rag.IsUpstream(err))
	n, _ := s.CountEmbeddings(context.Background())
	assert.Zero(t, n)
}

const menuYAML = `
- id: m1
  name: Soup
  description: Tomato soup
  ingredients: tomato, salt
  price: "12"
- name: Rice
  description: Fried rice
  ingredients: rice, egg
  price: 8.5
- id: m3
  name: Mystery
  description: Ask the chef
  price: 5
`

func TestParseMenu(t *testing.T) {
	t.Parallel()
	items, err := ParseMenu([]byte(menuYAML))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "m1", items[0].ID)
	assert.NotContains(t, items[0].Data, "id")
	assert.NotEmpty(t, items[1].ID)
	assert.Equal(t, itemID("Rice", 1), items[1].ID)

	_, err = ParseMenu([]byte(`[{"id":"a"},{"id":"a"}]`))
	assert.Error(t, err)
}

func TestPipeline_IngestSkipsIncomplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	p, err := NewPipeline(newHandler(t, &fakeEmbedder{}, s, true), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "menu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(menuYAML), 0o600))

	items, err := p.Load(ctx, path)
	require.NoError(t, err)

	var msgs []string
	res, err := p.Ingest(ctx, items, func(m string) { msgs = append(msgs, m) })
	require.NoError(t, err)
	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, []string{"m3"}, res.Skipped)
	assert.Len(t, msgs, 3)

	stored, err := s.MenuItems(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPipeline_LoadFromURL(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/menu.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"m1","name":"Soup","description":"d","ingredients":"i","price":1}]`))
	}))
	defer srv.Close()

	p, err := NewPipeline(newHandler(t, &fakeEmbedder{}, openStore(t), false), nil)
	require.NoError(t, err)

	items, err := p.Load(context.Background(), srv.URL+"/menu.json")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "m1", items[0].ID)

	_, err = p.Load(context.Background(), srv.URL+"/missing.json")
	assert.Error(t, err)
}
