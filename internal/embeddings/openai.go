package embeddings

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const defaultModel = "text-embedding-3-small"

// OpenAI implements Provider using OpenAI's embeddings API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI embedding provider. An empty model uses
// the default; a non-empty baseURL points the client at an
// OpenAI-compatible endpoint.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Embed generates an embedding for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}

// Model returns the model name.
func (o *OpenAI) Model() string { return o.model }

var _ Provider = (*OpenAI)(nil)
