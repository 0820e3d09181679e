// Package embed provides text embedding backends for semantic search and
// the cosine similarity used to rank results.
package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model requested when none is configured.
const DefaultModel = string(openai.SmallEmbedding3)

// OpenAIConfig holds connection parameters for an OpenAI-compatible
// embeddings endpoint. BaseURL may point at any compatible server.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIProvider encodes texts through an OpenAI-compatible API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIProvider creates a provider from cfg. The API key is required.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embed: api key is required")
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cc),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// Encode embeds texts in one API call, preserving input order.
func (p *OpenAIProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embed: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
