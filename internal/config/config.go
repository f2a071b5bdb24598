// Package config provides layered configuration for pdfrag.
// Precedence, lowest to highest: built-in defaults → YAML file → .env file →
// process environment. Both files are translated into environment variables
// that are only set when still unset, so an exported variable always wins.
// FromEnv then reads the environment once into an explicit *Settings value
// that is passed to every component.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. PDFRAG_CONFIG environment variable
//  3. ~/.pdfrag/config.yaml
//  4. ./pdfrag.yaml
//
// If no file is found pdfrag runs from the environment and defaults alone.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File is the YAML configuration structure. Field names mirror the
// environment variable names (lowercase, underscored).
type File struct {
	// Model configures the chat completion backend.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding backend.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the vector store connection and collection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Ingest configures document ingestion.
	Ingest IngestConfig `yaml:"ingest"`

	// Retrieval configures search and context assembly.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider    string  `yaml:"provider"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`

	Ollama struct {
		Host  string `yaml:"host"`
		Model string `yaml:"model"`
	} `yaml:"ollama"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`

	Azure struct {
		APIKey     string `yaml:"api_key"`
		Endpoint   string `yaml:"endpoint"`
		Deployment string `yaml:"deployment"`
		APIVersion string `yaml:"api_version"`
	} `yaml:"azure"`

	Ark struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		Region  string `yaml:"region"`
	} `yaml:"ark"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"gemini"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	Provider   string  `yaml:"provider"`
	Model      string  `yaml:"model"`
	Dimensions int     `yaml:"dimensions"`
	APIKey     string  `yaml:"api_key"`
	Endpoint   string  `yaml:"endpoint"`
	APIVersion string  `yaml:"api_version"`
	Deployment string  `yaml:"deployment"`
	RPS        float64 `yaml:"rps"`
	MaxRetries int     `yaml:"max_retries"`
	BatchSize  int     `yaml:"batch_size"`
}

// QdrantConfig holds Qdrant settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
	Distance   string `yaml:"distance"`
	APIKey     string `yaml:"api_key"`
	TLS        bool   `yaml:"tls"`
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	SourceDir       string `yaml:"source_dir"`
	MaxChunkSize    int    `yaml:"max_chunk_size"`
	OverlapChars    int    `yaml:"overlap_chars"`
	Workers         int    `yaml:"workers"`
	DuplicatePolicy string `yaml:"duplicate_policy"`
	ManifestDB      string `yaml:"manifest_db"`
}

// RetrievalConfig holds search and prompt budget settings.
type RetrievalConfig struct {
	TopK             int    `yaml:"top_k"`
	ScoreThreshold   string `yaml:"score_threshold"`
	DocumentFilter   string `yaml:"document_filter"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	MaxHistoryTokens int    `yaml:"max_history_tokens"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// MetricsConfig holds the Prometheus listener address.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// envMapping maps YAML fields to their environment variable names. Only
// non-empty YAML values are applied; environment variables always take
// precedence.
var envMapping = []struct {
	envKey string
	value  func(*File) string
}{
	{"MODEL_PROVIDER", func(c *File) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *File) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *File) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *File) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *File) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *File) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *File) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *File) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *File) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *File) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *File) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *File) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *File) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *File) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *File) string { return c.Model.Ark.BaseURL }},
	{"ARK_REGION", func(c *File) string { return c.Model.Ark.Region }},
	{"GOOGLE_API_KEY", func(c *File) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *File) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *File) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *File) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *File) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *File) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *File) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_API_VERSION", func(c *File) string { return c.Embedding.APIVersion }},
	{"EMBEDDING_DEPLOYMENT", func(c *File) string { return c.Embedding.Deployment }},
	{"EMBEDDING_RPS", func(c *File) string { return float64Str(c.Embedding.RPS) }},
	{"EMBEDDING_MAX_RETRIES", func(c *File) string { return intStr(c.Embedding.MaxRetries) }},
	{"EMBEDDING_BATCH_SIZE", func(c *File) string { return intStr(c.Embedding.BatchSize) }},
	{"QDRANT_HOST", func(c *File) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *File) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *File) string { return c.Qdrant.Collection }},
	{"QDRANT_DISTANCE", func(c *File) string { return c.Qdrant.Distance }},
	{"QDRANT_API_KEY", func(c *File) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *File) string { return boolStr(c.Qdrant.TLS) }},
	{"PDFRAG_SOURCE_DIR", func(c *File) string { return c.Ingest.SourceDir }},
	{"CHUNK_MAX_SIZE", func(c *File) string { return intStr(c.Ingest.MaxChunkSize) }},
	{"CHUNK_OVERLAP", func(c *File) string { return intStr(c.Ingest.OverlapChars) }},
	{"INGEST_WORKERS", func(c *File) string { return intStr(c.Ingest.Workers) }},
	{"INGEST_DUPLICATE_POLICY", func(c *File) string { return c.Ingest.DuplicatePolicy }},
	{"PDFRAG_MANIFEST_DB", func(c *File) string { return c.Ingest.ManifestDB }},
	{"RAG_TOP_K", func(c *File) string { return intStr(c.Retrieval.TopK) }},
	{"RAG_SCORE_THRESHOLD", func(c *File) string { return c.Retrieval.ScoreThreshold }},
	{"RAG_DOC_FILTER", func(c *File) string { return c.Retrieval.DocumentFilter }},
	{"RAG_MAX_CONTEXT_TOKENS", func(c *File) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"CHAT_MAX_HISTORY_TOKENS", func(c *File) string { return intStr(c.Retrieval.MaxHistoryTokens) }},
	{"LOG_LEVEL", func(c *File) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *File) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *File) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *File) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *File) string { return c.Tracing.Host }},
	{"PDFRAG_METRICS_ADDR", func(c *File) string { return c.Metrics.Addr }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// LoadDotEnv loads a .env file into the environment without overriding
// variables that are already set. An empty path selects ./.env. A missing
// file is not an error. Call it before Load so .env outranks the YAML file.
func LoadDotEnv(path string, log *slog.Logger) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("config: no .env file", slog.String("path", path))
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded .env file", slog.String("path", path))
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("PDFRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".pdfrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("pdfrag.yaml"); err == nil {
		return "pdfrag.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
