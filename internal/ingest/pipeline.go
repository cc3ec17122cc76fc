package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/waiterbot-go/internal/store"
)

// idField is the optional per-item id key in a menu file.
const idField = "id"

// PipelineConfig holds the configuration for loading menu files.
type PipelineConfig struct {
	// HTTPTimeout is the timeout for fetching a remote menu file.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline loads a menu file and runs every item through a Handler.
type Pipeline struct {
	handler    *Handler
	cfg        *PipelineConfig
	httpClient *http.Client
}

// Result summarises one Pipeline run.
type Result struct {
	// Embedded is the number of items stored.
	Embedded int
	// Skipped lists the ids rejected with a MissingFieldError.
	Skipped []string
}

// NewPipeline constructs a Pipeline around h.
func NewPipeline(h *Handler, cfg *PipelineConfig) (*Pipeline, error) {
	if h == nil {
		return nil, errors.New("ingest: handler must not be nil")
	}
	if cfg == nil {
		cfg = &PipelineConfig{}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "waiterbot-go/1.0 (menu ingestion)"
	}
	return &Pipeline{
		handler:    h,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

// Load reads a YAML or JSON list of menu items from a local path or an
// http(s) URL. Items without an id get one derived from their name.
func (p *Pipeline) Load(ctx context.Context, source string) ([]store.MenuItem, error) {
	var (
		raw []byte
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		raw, err = p.fetch(ctx, source)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: load %s: %w", source, err)
	}
	return ParseMenu(raw)
}

// ParseMenu decodes a YAML or JSON list of menu documents.
func ParseMenu(raw []byte) ([]store.MenuItem, error) {
	var docs []map[string]any
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("ingest: parse menu: %w", err)
	}
	items := make([]store.MenuItem, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for i, doc := range docs {
		id := ""
		if v, ok := doc[idField]; ok && v != nil {
			id = strings.TrimSpace(fmt.Sprint(v))
		}
		delete(doc, idField)
		if id == "" {
			id = itemID(Name(doc), i)
		}
		if seen[id] {
			return nil, fmt.Errorf("ingest: parse menu: duplicate id %q", id)
		}
		seen[id] = true
		items = append(items, store.MenuItem{ID: id, Data: doc})
	}
	return items, nil
}

// Ingest embeds every item in order. Items missing a field are skipped and
// reported; any other failure stops the run.
func (p *Pipeline) Ingest(ctx context.Context, items []store.MenuItem, progress func(msg string)) (Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	var res Result
	for _, item := range items {
		_, err := p.handler.Handle(ctx, item.ID, item.Data)
		var missing *MissingFieldError
		switch {
		case errors.As(err, &missing):
			res.Skipped = append(res.Skipped, item.ID)
			progress(fmt.Sprintf("skipped %s: missing %s", item.ID, missing.Field))
		case err != nil:
			return res, fmt.Errorf("ingest: item %s: %w", item.ID, err)
		default:
			res.Embedded++
			progress(fmt.Sprintf("embedded %s", item.ID))
		}
	}
	return res, nil
}

// fetch retrieves the raw content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, application/yaml, text/plain")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// itemID derives a deterministic id from an item's name and file position.
func itemID(name string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", name, index)))
	return fmt.Sprintf("%x", h[:8])
}
