package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/waiterbot-go/internal/backfill"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/embedder"
	"github.com/54b3r/waiterbot-go/internal/logging"
)

// NewBackfillCmd constructs the `waiterbot backfill` command, which runs the
// embedding export once.
func NewBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Export embeddings of every menu item once",
		Long: `Embed every stored menu item and upload the result as newline-delimited
JSON ({"id": ..., "embedding": [...]}) named
BACKFILL_OBJECT_PREFIX/embeddings-YYYYMMDD.json.

The export goes to the Cloud Storage bucket BACKFILL_BUCKET when set, else
to the local directory BACKFILL_DIR (default: ./exports). Embedding calls
are throttled to BACKFILL_RPS per second.

Examples:
  waiterbot backfill
  BACKFILL_BUCKET=my-bucket waiterbot backfill`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			st, err := buildStore(ctx, rt.Store, log)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			defer st.Close()

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("backfill: failed to initialise embedder: %w", err)
			}

			uploader, closeUploader, err := buildUploader(ctx, rt.Backfill)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}
			defer func() { _ = closeUploader() }()

			job, err := backfill.NewJob(backfill.Config{
				Menu:     st,
				Embedder: emb,
				Uploader: uploader,
				Prefix:   rt.Backfill.Prefix,
				RPS:      rt.Backfill.RPS,
				Logger:   log,
			})
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			report, err := job.Run(ctx)
			if err != nil {
				return err //nolint:wrapcheck // already prefixed by the job
			}
			log.Info("backfill complete",
				slog.Int("exported", report.Exported),
				slog.Int("skipped", len(report.Skipped)),
				slog.String("location", report.Location),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d item(s) to %s\n", report.Exported, report.Location)
			return nil
		},
	}
	return cmd
}
