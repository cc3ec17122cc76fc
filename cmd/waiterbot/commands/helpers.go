package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/waiterbot-go/internal/blob"
	"github.com/54b3r/waiterbot-go/internal/chat"
	"github.com/54b3r/waiterbot-go/internal/completion"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/embedder"
	"github.com/54b3r/waiterbot-go/internal/menuindex"
	"github.com/54b3r/waiterbot-go/internal/prompt"
	"github.com/54b3r/waiterbot-go/internal/provider"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/server"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// defaultExportDir receives backfill exports when no bucket is configured.
const defaultExportDir = "exports"

// runtimeDeps holds the dependencies shared by serve and ask.
type runtimeDeps struct {
	rt       *config.Runtime
	store    store.Store
	embedder rag.Embedder
	index    menuindex.Index
	closers  []func() error
}

// Close releases every opened dependency in reverse order.
func (d *runtimeDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// buildDeps opens the store, the embedder and the vector index selected by
// rt. The caller must Close the result.
func buildDeps(ctx context.Context, rt *config.Runtime, log *slog.Logger) (*runtimeDeps, error) {
	d := &runtimeDeps{rt: rt}

	st, err := buildStore(ctx, rt.Store, log)
	if err != nil {
		return nil, err
	}
	d.store = st
	d.closers = append(d.closers, st.Close)

	embedder.WarnOnSuspiciousConfig(log)
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	d.embedder = emb
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

	dims := embedder.DefaultDimensions(embedder.Backend())
	idx, err := menuindex.New(ctx, rt.Index, emb, dims)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to initialise %s index: %w", rt.Index.Backend, err)
	}
	d.index = idx
	if q, ok := idx.(*menuindex.Qdrant); ok {
		d.closers = append(d.closers, q.Close)
		log.Info("qdrant index ready",
			slog.String("host", rt.Index.QdrantHost),
			slog.Int("port", rt.Index.QdrantPort),
			slog.String("collection", rt.Index.QdrantCollection),
		)
	}

	return d, nil
}

// buildStore opens the document store selected by sr.
func buildStore(ctx context.Context, sr config.StoreRuntime, log *slog.Logger) (store.Store, error) {
	switch sr.Backend {
	case "firestore":
		st, err := store.OpenFirestore(ctx, sr.FirestoreProject, sr.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		log.Info("store: firestore opened",
			slog.String("project", sr.FirestoreProject),
			slog.String("database", sr.FirestoreDatabase),
		)
		return st, nil
	default:
		path, err := sr.SQLitePathOrDefault()
		if err != nil {
			return nil, err
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		log.Info("store: sqlite opened", slog.String("path", path))
		return st, nil
	}
}

// menuMirror returns the store that should also receive ingested menu
// items. Firestore already holds them, and writing them back would fire the
// ingestion trigger again.
func menuMirror(rt *config.Runtime, st store.Store) store.MenuStore {
	if rt.Store.Backend == "firestore" {
		return nil
	}
	return st
}

// buildResponder wires the chat model, the completion client and the chat
// handler on top of d.
func buildResponder(ctx context.Context, d *runtimeDeps, log *slog.Logger) (*chat.Handler, *menuindex.Syncer, *provider.Config, error) {
	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	completer, err := completion.New(completion.Config{
		Model:            chatModel,
		Builder:          prompt.New(d.rt.Bot.Name, d.rt.Bot.Restaurant),
		Mode:             d.rt.Bot.Mode,
		MaxContextTokens: d.rt.Bot.MaxContextTokens,
		Logger:           log,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	syncer := menuindex.NewSyncer(d.index, d.store, log)
	handler, err := chat.NewHandler(chat.Config{
		Syncer:        syncer,
		Conversations: d.store,
		Settings:      d.store,
		Completer:     completer,
		TopK:          d.rt.Index.TopK,
		Temperature:   d.rt.Bot.Temperature,
		Logger:        log,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return handler, syncer, providerCfg, nil
}

// buildPingers returns the readiness probes for the configured dependencies.
// Backends without a zero-cost probe are left out.
func buildPingers(d *runtimeDeps, providerCfg *provider.Config) []server.Pinger {
	pingers := []server.Pinger{server.NewStorePinger(d.store, d.rt.Store.Backend)}
	if q, ok := d.index.(*menuindex.Qdrant); ok {
		pingers = append(pingers, server.NewQdrantPinger(q))
	}
	if p := server.NewLLMPinger(providerCfg.HealthCheck(), string(providerCfg.Backend)); p != nil {
		pingers = append(pingers, p)
	}
	return pingers
}

// buildUploader returns the backfill destination: the GCS bucket when one is
// configured, else a local directory.
func buildUploader(ctx context.Context, br config.BackfillRuntime) (blob.Uploader, func() error, error) {
	if br.Bucket != "" {
		g, err := blob.NewGCS(ctx, br.Bucket)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
	dir := br.Dir
	if dir == "" {
		dir = defaultExportDir
	}
	d, err := blob.NewDir(dir)
	if err != nil {
		return nil, nil, err
	}
	return d, func() error { return nil }, nil
}
