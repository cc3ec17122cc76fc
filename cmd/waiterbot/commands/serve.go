package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/waiterbot-go/internal/backfill"
	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/ingest"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/server"
	"github.com/54b3r/waiterbot-go/internal/tracing"
)

// NewServeCmd constructs the `waiterbot serve` command, which starts the
// HTTP server receiving menu item and chat document events.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WaiterBot event server",
		Long: `Start the WaiterBot HTTP server.

Document change events are pushed to:

  POST /events/food/{documentId}                     embed a menu item
  POST /events/query/{documentId}/chats/{chatId}     answer a chat message

Liveness, readiness and Prometheus metrics are served on /api/health,
/api/ready and /metrics. When BACKFILL_CRON is set (default: monthly), the
embedding export runs on that schedule in the background.

Examples:
  waiterbot serve
  waiterbot serve --port 9090
  STORE_BACKEND=firestore INDEX_BACKEND=qdrant waiterbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			rt, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if cmd.Flags().Changed("host") {
				rt.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				rt.Server.Port = port
			}

			log.Info("serve starting",
				slog.String("store", rt.Store.Backend),
				slog.String("index", rt.Index.Backend),
				slog.String("mode", rt.Bot.Mode),
			)

			flush, ok := tracing.Install(tracing.ConfigFromEnv())
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			deps, err := buildDeps(ctx, rt, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer deps.Close()

			responder, syncer, providerCfg, err := buildResponder(ctx, deps, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			ingester, err := ingest.NewHandler(ingest.Config{
				Embedder:   deps.embedder,
				Embeddings: deps.store,
				Menu:       menuMirror(rt, deps.store),
				Index:      syncer,
				Logger:     log,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(ingester, responder, &server.Config{
				Host:           rt.Server.Host,
				Port:           rt.Server.Port,
				HandlerTimeout: rt.Server.HandlerTimeout,
				MaxInstances:   rt.Server.MaxInstances,
				Logger:         log,
				Pingers:        buildPingers(deps, providerCfg),
				RateLimit:      rt.Server.RateLimit,
				RateBurst:      rt.Server.RateBurst,
				APIKey:         rt.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			syncer.OnResync = srv.ObserveResync

			// Warm the index so the first chat event does not pay for the
			// rebuild.
			if _, err := syncer.Sync(ctx); err != nil {
				log.Warn("serve: initial index sync failed", slog.Any("error", err))
			}

			if err := startBackfill(ctx, rt, deps, log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to (overrides WAITERBOT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (overrides PORT)")

	return cmd
}

// startBackfill launches the scheduled embedding export in the background.
// It is a no-op when BACKFILL_CRON is "off".
func startBackfill(ctx context.Context, rt *config.Runtime, deps *runtimeDeps, log *slog.Logger) error {
	if cron := strings.TrimSpace(rt.Backfill.Cron); cron == "" || strings.EqualFold(cron, backfill.Off) {
		log.Info("backfill: schedule disabled")
		return nil
	}
	uploader, closeUploader, err := buildUploader(ctx, rt.Backfill)
	if err != nil {
		return err
	}
	job, err := backfill.NewJob(backfill.Config{
		Menu:     deps.store,
		Embedder: deps.embedder,
		Uploader: uploader,
		Prefix:   rt.Backfill.Prefix,
		RPS:      rt.Backfill.RPS,
		Logger:   log,
	})
	if err != nil {
		_ = closeUploader()
		return err
	}
	sched, err := backfill.NewScheduler(rt.Backfill.Cron, job, log)
	if err != nil {
		_ = closeUploader()
		return err
	}
	deps.closers = append(deps.closers, closeUploader)
	go sched.Start(ctx)
	return nil
}
