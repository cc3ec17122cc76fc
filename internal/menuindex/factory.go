package menuindex

import (
	"context"
	"fmt"

	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/rag"
)

// New builds the index selected by rt.Backend. The memory backend returns
// the process-wide Shared index; dims is only used to create a Qdrant
// collection.
func New(ctx context.Context, rt config.IndexRuntime, e rag.Embedder, dims int) (Index, error) {
	switch rt.Backend {
	case BackendMemory, "":
		return Shared(e)
	case BackendQdrant:
		return NewQdrant(ctx, QdrantConfig{
			Host:       rt.QdrantHost,
			Port:       rt.QdrantPort,
			Collection: rt.QdrantCollection,
			VectorSize: uint64(dims),
			MinScore:   rt.MinScore,
			APIKey:     rt.QdrantAPIKey,
			UseTLS:     rt.QdrantTLS,
		}, e)
	default:
		return nil, fmt.Errorf("menuindex: unsupported backend %q; valid values: memory, qdrant", rt.Backend)
	}
}
