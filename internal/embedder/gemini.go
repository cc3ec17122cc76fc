package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// contentEmbedder is the slice of *genai.Models the Gemini embedder calls.
// Tests substitute a fake.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder implements rag.Embedder with the Gemini embedContent API.
// It is safe for concurrent use.
type GeminiEmbedder struct {
	// models is the genai models service.
	models contentEmbedder
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// config carries the task type and output dimensionality.
	config *genai.EmbedContentConfig
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions truncates the output vector (0 = model default).
	Dimensions int
	// TaskType is passed through to the API (e.g. "RETRIEVAL_DOCUMENT").
	// Empty leaves the model default.
	TaskType string
}

// NewGeminiEmbedder constructs a GeminiEmbedder backed by a genai client.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: GOOGLE_API_KEY or EMBEDDING_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: failed to create client: %w", err)
	}
	return newGeminiEmbedder(client.Models, cfg), nil
}

// newGeminiEmbedder wires an already constructed models service.
func newGeminiEmbedder(models contentEmbedder, cfg *GeminiConfig) *GeminiEmbedder {
	ec := &genai.EmbedContentConfig{TaskType: cfg.TaskType}
	if cfg.Dimensions > 0 {
		d := int32(cfg.Dimensions) //nolint:gosec // dimensions are bounded
		ec.OutputDimensionality = &d
	}
	return &GeminiEmbedder{models: models, model: cfg.Model, config: ec}
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, e.config)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), got)
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embedder: empty embedding at index %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
