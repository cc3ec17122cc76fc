package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/embedder"
	"github.com/54b3r/waiterbot-go/internal/ingest"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/menuindex"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// NewIngestCmd constructs the `waiterbot ingest` command, which embeds every
// item of one or more menu files into the embedding store.
func NewIngestCmd() *cobra.Command {
	var syncIndex bool

	cmd := &cobra.Command{
		Use:   "ingest <menu-file-or-url>...",
		Short: "Embed a menu file into the embedding store",
		Long: `Load a YAML or JSON list of menu items and embed each one.

Every item needs name, description, ingredients and price; items missing a
field are skipped and reported. Items without an "id" get one derived from
their name. With the sqlite store the items themselves are stored as well,
so 'waiterbot backfill' can export them later.

With INDEX_BACKEND=qdrant the collection is rebuilt from the embedding
store afterwards (disable with --sync-index=false).

Relevant environment variables:
  STORE_BACKEND        sqlite (default) or firestore
  WAITERBOT_DB         sqlite path (default: ~/.waiterbot/waiterbot.db)
  EMBEDDING_PROVIDER   gemini, openai, azure, ollama (inherits MODEL_PROVIDER)

Examples:
  waiterbot ingest menu.yaml
  waiterbot ingest https://example.com/menu.json
  STORE_BACKEND=firestore waiterbot ingest specials.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			st, err := buildStore(ctx, rt.Store, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer st.Close()

			embedder.WarnOnSuspiciousConfig(log)
			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

			handler, err := ingest.NewHandler(ingest.Config{
				Embedder:   emb,
				Embeddings: st,
				Menu:       menuMirror(rt, st),
				Logger:     log,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			pipeline, err := ingest.NewPipeline(handler, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			var items []store.MenuItem
			for _, src := range args {
				loaded, err := pipeline.Load(ctx, src)
				if err != nil {
					return err
				}
				log.Info("menu loaded", slog.String("source", src), slog.Int("items", len(loaded)))
				items = append(items, loaded...)
			}

			log.Info("starting ingestion", slog.Int("items", len(items)))
			res, err := pipeline.Ingest(ctx, items, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}
			log.Info("ingestion complete",
				slog.Int("embedded", res.Embedded),
				slog.Int("skipped", len(res.Skipped)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d item(s), skipped %d\n", res.Embedded, len(res.Skipped))

			if !syncIndex || rt.Index.Backend != menuindex.BackendQdrant {
				return nil
			}
			idx, err := menuindex.New(ctx, rt.Index, emb, embedder.DefaultDimensions(embedder.Backend()))
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if q, ok := idx.(*menuindex.Qdrant); ok {
				defer q.Close()
			}
			if _, err := menuindex.NewSyncer(idx, st, log).Sync(ctx); err != nil {
				return fmt.Errorf("ingest: index sync failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&syncIndex, "sync-index", true, "Rebuild the Qdrant collection after ingesting")

	return cmd
}
