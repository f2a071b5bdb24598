package embedder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-large"

	defaultOllamaDimensions = 768
)

// knownDimensions maps embedding model names to their native output size.
var knownDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is one of ollama, openai, azure.
	Provider string

	// Model is the embedding model. Empty selects the backend default.
	Model string

	// Dimensions is the expected vector size. 0 selects the model's native size.
	Dimensions int

	// APIKey authenticates openai and azure.
	APIKey string

	// Endpoint is the backend base URL (Ollama host, OpenAI base URL or
	// Azure resource endpoint).
	Endpoint string

	// APIVersion is the Azure OpenAI API version.
	APIVersion string

	// Deployment is the Azure deployment name.
	Deployment string

	// Resilience wraps the backend. Dimension and Normalize are filled in
	// by the caller from the collection settings.
	Resilience ResilientConfig
}

// ResolvedModel returns Model or the provider default.
func (c Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	if c.Provider == "ollama" {
		return defaultOllamaModel
	}
	return defaultOpenAIModel
}

// DefaultDimensions returns the vector size the configured model produces.
// An explicit Dimensions always wins; unknown models fall back to the
// provider's default model size.
func DefaultDimensions(cfg Config) int {
	if cfg.Dimensions > 0 {
		return cfg.Dimensions
	}
	if d, ok := knownDimensions[strings.ToLower(cfg.ResolvedModel())]; ok {
		return d
	}
	if cfg.Provider == "ollama" {
		return defaultOllamaDimensions
	}
	return knownDimensions[defaultOpenAIModel]
}

// New builds the embedding backend described by cfg and wraps it in a
// Resilient embedder.
func New(cfg Config, log *slog.Logger) (rag.Embedder, error) {
	model := cfg.ResolvedModel()

	var inner rag.Embedder
	var err error
	switch cfg.Provider {
	case "ollama":
		host := cfg.Endpoint
		if host == "" {
			host = "http://localhost:11434"
		}
		inner, err = NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	case "openai", "":
		inner, err = NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      model,
			Dimensions: cfg.Dimensions,
		})

	case "azure":
		inner, err = NewOpenAIEmbedder(&OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.Endpoint,
			Model:      model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
			Deployment: cfg.Deployment,
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	log.Info("embedder: configured",
		slog.String("provider", cfg.Provider),
		slog.String("model", model),
		slog.Int("dimensions", DefaultDimensions(cfg)),
	)
	return NewResilient(inner, cfg.Resilience, log), nil
}
