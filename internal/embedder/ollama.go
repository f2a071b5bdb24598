package embedder

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string

	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// OllamaEmbedder implements rag.Embedder using a local Ollama server.
// It is safe for concurrent use.
type OllamaEmbedder struct {
	llm   *ollama.LLM
	model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedder: ollama requires a model")
	}
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.Host != "" {
		opts = append(opts, ollama.WithServerURL(cfg.Host))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama client: %w", err)
	}
	return &OllamaEmbedder{llm: llm, model: cfg.Model}, nil
}

// Embed converts texts into vectors, one per input.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vecs, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama model %q: %w", e.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder: ollama returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	return vecs, nil
}
