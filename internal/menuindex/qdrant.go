package menuindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/waiterbot-go/internal/rag"
)

// Payload keys stored on every Qdrant point.
const (
	payloadID   = "menu_id"
	payloadText = "text"
)

// pointNamespace derives stable point UUIDs from menu item ids.
var pointNamespace = uuid.MustParse("6f1b7f0e-3c59-4d1e-9a57-52a4c1d0b7a1")

// QdrantConfig holds connection parameters for a Qdrant collection.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: menu).
	Collection string

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// MinScore drops neighbours whose cosine similarity is below it.
	// Zero disables the cut-off.
	MinScore float32

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// qdrantAPI is the subset of *qdrant.Client the index uses.
type qdrantAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Qdrant is an Index backed by a Qdrant collection using cosine distance.
type Qdrant struct {
	client   qdrantAPI
	cfg      QdrantConfig
	embedder rag.Embedder
}

var _ Index = (*Qdrant)(nil)

// NewQdrant connects to Qdrant and ensures the collection exists.
func NewQdrant(ctx context.Context, cfg QdrantConfig, e rag.Embedder) (*Qdrant, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "menu"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size is required")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	q := newQdrant(client, cfg, e)
	if err := q.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func newQdrant(client qdrantAPI, cfg QdrantConfig, e rag.Embedder) *Qdrant {
	return &Qdrant{client: client, cfg: cfg, embedder: e}
}

// ensureCollection creates the collection if it does not already exist.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// pointID maps a menu item id to its point UUID.
func pointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Add upserts the point for id.
func (q *Qdrant) Add(ctx context.Context, id string, vector []float32, text string) error {
	if err := validateAdd(id, vector); err != nil {
		return err
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID(id)),
			Vectors: qdrant.NewVectorsDense(vector),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadID:   id,
				payloadText: text,
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %q failed: %w", id, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (q *Qdrant) Count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Clear drops and recreates the collection.
func (q *Qdrant) Clear(ctx context.Context) error {
	if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: delete collection %q failed: %w", q.cfg.Collection, err)
	}
	return q.ensureCollection(ctx)
}

// Query embeds text and returns up to k nearest points. Neighbours below
// MinScore are dropped when it is set.
func (q *Qdrant) Query(ctx context.Context, text string, k int) ([]rag.Passage, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := rag.EmbedOne(ctx, q.embedder, text)
	if err != nil {
		return nil, err
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if q.cfg.MinScore > 0 {
		req.ScoreThreshold = qdrant.PtrOf(q.cfg.MinScore)
	}
	results, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	passages := make([]rag.Passage, 0, len(results))
	for _, r := range results {
		p := rag.Passage{ID: r.GetId().GetUuid(), Score: r.GetScore()}
		payload := r.GetPayload()
		if v, ok := payload[payloadID]; ok {
			p.ID = v.GetStringValue()
		}
		if v, ok := payload[payloadText]; ok {
			p.Text = v.GetStringValue()
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// Ping checks the Qdrant server is reachable.
func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}
