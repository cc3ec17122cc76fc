package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// IndexWriter receives freshly stored embeddings.
type IndexWriter interface {
	Upsert(ctx context.Context, rec store.EmbeddingRecord) error
}

// Handler embeds one menu item and stores the result.
type Handler struct {
	embedder   rag.Embedder
	embeddings store.EmbeddingStore
	menu       store.MenuStore
	index      IndexWriter
	log        *slog.Logger
}

// Config holds the dependencies of a Handler.
type Config struct {
	// Embedder computes the item vector.
	Embedder rag.Embedder
	// Embeddings receives {id, text, vector}.
	Embeddings store.EmbeddingStore
	// Menu, when set, also receives the item document itself. Leave it nil
	// when the item already lives in the document store (Firestore), or
	// the write would re-trigger ingestion.
	Menu store.MenuStore
	// Index, when set, is updated after the store write. A failure is
	// logged only; the next count mismatch rebuilds the index.
	Index IndexWriter
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewHandler returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("ingest: embedder must not be nil")
	}
	if cfg.Embeddings == nil {
		return nil, errors.New("ingest: embedding store must not be nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Handler{embedder: cfg.Embedder, embeddings: cfg.Embeddings, menu: cfg.Menu, index: cfg.Index, log: log}, nil
}

// Handle flattens, embeds and stores the item, overwriting any previous
// embedding for id. A missing field returns *MissingFieldError with nothing
// written; an embedding failure returns a rag.UpstreamError.
func (h *Handler) Handle(ctx context.Context, id string, data map[string]any) (store.EmbeddingRecord, error) {
	if id == "" {
		return store.EmbeddingRecord{}, errors.New("ingest: menu item id is required")
	}
	text, err := Flatten(data)
	if err != nil {
		h.log.Warn("ingest: skipping menu item", slog.String("id", id), slog.String("error", err.Error()))
		return store.EmbeddingRecord{}, err
	}

	vec, err := rag.EmbedOne(ctx, h.embedder, text)
	if err != nil {
		return store.EmbeddingRecord{}, err
	}

	if h.menu != nil {
		if err := h.menu.PutMenuItem(ctx, store.MenuItem{ID: id, Data: data}); err != nil {
			return store.EmbeddingRecord{}, fmt.Errorf("ingest: %w", err)
		}
	}
	rec := store.EmbeddingRecord{ID: id, Text: text, Vector: vec}
	if err := h.embeddings.PutEmbedding(ctx, rec); err != nil {
		return store.EmbeddingRecord{}, fmt.Errorf("ingest: %w", err)
	}
	if h.index != nil {
		if err := h.index.Upsert(ctx, rec); err != nil {
			h.log.Warn("ingest: index update failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}

	h.log.Info("ingest: embedded menu item",
		slog.String("id", id),
		slog.String("name", Name(data)),
		slog.Int("dimensions", len(vec)),
	)
	return rec, nil
}
