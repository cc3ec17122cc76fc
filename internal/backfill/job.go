// Package backfill re-embeds every menu item and exports the vectors as a
// newline-delimited JSON file to a blob store. It runs on demand or on a
// cron schedule.
package backfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/waiterbot-go/internal/blob"
	"github.com/54b3r/waiterbot-go/internal/ingest"
	"github.com/54b3r/waiterbot-go/internal/rag"
	"github.com/54b3r/waiterbot-go/internal/store"
)

// line is one exported record.
type line struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
}

// Config holds the dependencies of a Job.
type Config struct {
	// Menu lists the items to export.
	Menu store.MenuStore
	// Embedder computes each item vector.
	Embedder rag.Embedder
	// Uploader receives the export file.
	Uploader blob.Uploader
	// Prefix is the object name prefix. Defaults to "backfill".
	Prefix string
	// RPS caps embedding calls per second. Defaults to 2.
	RPS float64
	// Now defaults to time.Now; it names the export file.
	Now func() time.Time
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Job exports menu embeddings.
type Job struct {
	menu     store.MenuStore
	embedder rag.Embedder
	uploader blob.Uploader
	prefix   string
	limiter  *rate.Limiter
	now      func() time.Time
	log      *slog.Logger
}

// Report summarises one run.
type Report struct {
	// Exported is the number of lines written.
	Exported int
	// Skipped lists items rejected for missing fields.
	Skipped []string
	// Location is where the export was uploaded.
	Location string
}

// NewJob returns a Job.
func NewJob(cfg Config) (*Job, error) {
	switch {
	case cfg.Menu == nil:
		return nil, errors.New("backfill: menu store must not be nil")
	case cfg.Embedder == nil:
		return nil, errors.New("backfill: embedder must not be nil")
	case cfg.Uploader == nil:
		return nil, errors.New("backfill: uploader must not be nil")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "backfill"
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 2
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Job{
		menu:     cfg.Menu,
		embedder: cfg.Embedder,
		uploader: cfg.Uploader,
		prefix:   prefix,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		now:      now,
		log:      log,
	}, nil
}

// ObjectName returns the export object name for t.
func (j *Job) ObjectName(t time.Time) string {
	return path.Join(j.prefix, "embeddings-"+t.UTC().Format("20060102")+".json")
}

// Run embeds every complete menu item, writes one {"id","embedding"} line
// per item to a temporary file and uploads it. Items missing a field are
// logged and skipped; any other failure aborts the run before upload.
func (j *Job) Run(ctx context.Context) (Report, error) {
	start := j.now()
	items, err := j.menu.MenuItems(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("backfill: %w", err)
	}

	tmp, err := os.CreateTemp("", "waiterbot-backfill-*.json")
	if err != nil {
		return Report{}, fmt.Errorf("backfill: temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	var rep Report
	enc := json.NewEncoder(tmp)
	for _, item := range items {
		text, err := ingest.Flatten(item.Data)
		var missing *ingest.MissingFieldError
		if errors.As(err, &missing) {
			j.log.Warn("backfill: skipping menu item",
				slog.String("id", item.ID),
				slog.String("missing", missing.Field),
			)
			rep.Skipped = append(rep.Skipped, item.ID)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("backfill: item %s: %w", item.ID, err)
		}

		if err := j.limiter.Wait(ctx); err != nil {
			return rep, fmt.Errorf("backfill: %w", err)
		}
		vec, err := rag.EmbedOne(ctx, j.embedder, text)
		if err != nil {
			return rep, fmt.Errorf("backfill: item %s: %w", item.ID, err)
		}
		if err := enc.Encode(line{ID: item.ID, Embedding: vec}); err != nil {
			return rep, fmt.Errorf("backfill: write: %w", err)
		}
		rep.Exported++
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return rep, fmt.Errorf("backfill: rewind: %w", err)
	}
	loc, err := j.uploader.Upload(ctx, j.ObjectName(start), tmp)
	if err != nil {
		return rep, fmt.Errorf("backfill: %w", err)
	}
	rep.Location = loc

	j.log.Info("backfill: export uploaded",
		slog.String("location", loc),
		slog.Int("exported", rep.Exported),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Duration("duration", time.Since(start)),
	)
	return rep, nil
}
