// Package embedder provides rag.Embedder implementations for the embedding
// backends pdfrag supports, plus a resilience wrapper that adds rate
// limiting, retries and vector normalisation around any of them.
package embedder

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// APIKey is the authentication key.
	APIKey string

	// BaseURL overrides the API base. For OpenAI the default is
	// "https://api.openai.com/v1". For Azure it is the resource endpoint,
	// e.g. "https://<resource>.openai.azure.com".
	BaseURL string

	// Model is the embedding model name (e.g. "text-embedding-3-large").
	Model string

	// Dimensions requests a shortened vector (0 = model default).
	Dimensions int

	// Azure selects Azure OpenAI auth and URL layout.
	Azure bool

	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string

	// Deployment is the Azure deployment serving Model. Defaults to Model.
	Deployment string
}

// OpenAIEmbedder implements rag.Embedder against the OpenAI or Azure OpenAI
// embeddings API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from cfg.
func NewOpenAIEmbedder(cfg *OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedder: openai requires an API key")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedder: openai requires a model")
	}

	var clientCfg openai.ClientConfig
	if cfg.Azure {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedder: azure requires an endpoint")
		}
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		if cfg.Deployment != "" {
			deployment := cfg.Deployment
			clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
		}
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed sends one embeddings request for texts and returns the vectors in
// input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: openai request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedder: openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedder: openai returned out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedder: openai returned no embedding for input %d", i)
		}
	}
	return out, nil
}
