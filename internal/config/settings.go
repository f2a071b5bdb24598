package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/budget"
	"github.com/54b3r/pdfrag-go/internal/embedder"
	"github.com/54b3r/pdfrag-go/internal/ingestion"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Defaults applied when neither a file nor the environment sets a value.
const (
	DefaultCollection     = "CollectionWithData"
	DefaultSourceDir      = "data"
	DefaultQdrantHost     = "localhost"
	DefaultQdrantPort     = 6334
	DefaultMaxChunkSize   = 1000
	DefaultOverlapChars   = 200
	DefaultTopK           = 6
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 500
	DefaultScoreThreshold = 0.25
	DefaultLangfuseHost   = "http://localhost:3000"

	// ManifestDisabled turns the ingestion manifest off when used as the
	// manifest path.
	ManifestDisabled = "disabled"
)

// Settings is the fully resolved runtime configuration. It is built once by
// FromEnv and passed explicitly to every component.
type Settings struct {
	// Chat is the completion backend configuration.
	Chat provider.Config

	// Embedding is the embedding backend configuration.
	Embedding embedder.Config

	// Qdrant is the vector store connection. Qdrant.Collection is the
	// collection every command targets.
	Qdrant rag.QdrantConfig

	// Distance is the collection's similarity metric.
	Distance rag.Distance

	// SourceDir is where ingest discovers PDFs.
	SourceDir string

	MaxChunkSize    int
	OverlapChars    int
	Workers         int
	DuplicatePolicy ingestion.DuplicatePolicy

	// ManifestPath is the SQLite ledger of ingested documents. Empty selects
	// the default location; ManifestDisabled turns it off.
	ManifestPath string

	TopK int

	// ScoreThreshold drops hits scoring below it. Nil disables the filter.
	ScoreThreshold *float32

	// DocumentFilter restricts retrieval to these document IDs. Empty
	// searches every document.
	DocumentFilter []string

	MaxContextTokens int
	MaxHistoryTokens int

	// MetricsAddr, when set, exposes Prometheus metrics during ingest.
	MetricsAddr string

	Tracing Tracing
}

// Tracing holds the Langfuse credentials.
type Tracing struct {
	Host      string
	PublicKey string
	SecretKey string
}

// Enabled reports whether both Langfuse keys are set.
func (t Tracing) Enabled() bool { return t.PublicKey != "" && t.SecretKey != "" }

// CollectionSpec returns the provisioning spec for the configured collection.
func (s *Settings) CollectionSpec() rag.CollectionSpec {
	return rag.CollectionSpec{
		Name:      s.Qdrant.Collection,
		Dimension: uint64(embedder.DefaultDimensions(s.Embedding)),
		Distance:  s.Distance,
	}
}

// IngestConfig returns the ingestion pipeline configuration.
func (s *Settings) IngestConfig() *ingestion.Config {
	return &ingestion.Config{
		Collection:      s.Qdrant.Collection,
		MaxChunkSize:    s.MaxChunkSize,
		OverlapChars:    s.OverlapChars,
		Workers:         s.Workers,
		DuplicatePolicy: s.DuplicatePolicy,
	}
}

// FromEnv reads the process environment into Settings and validates it.
// Unparseable values are reported together rather than silently replaced
// by defaults.
func FromEnv() (*Settings, error) {
	r := &envReader{}

	distance, err := rag.ParseDistance(os.Getenv("QDRANT_DISTANCE"))
	if err != nil {
		r.errs = append(r.errs, err)
	}
	policy, err := ingestion.ParseDuplicatePolicy(os.Getenv("INGEST_DUPLICATE_POLICY"))
	if err != nil {
		r.errs = append(r.errs, err)
	}

	embProvider := strings.ToLower(r.getString("EMBEDDING_PROVIDER", "ollama"))
	s := &Settings{
		Chat: provider.Config{
			Backend: provider.Backend(strings.ToLower(r.getString("MODEL_PROVIDER", string(provider.BackendOllama)))),
			Ollama: provider.ProviderOllama{
				Host:  r.getString("OLLAMA_HOST", "http://localhost:11434"),
				Model: r.getString("OLLAMA_MODEL", "llama3"),
			},
			OpenAI: provider.ProviderOpenAI{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   r.getString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
			},
			AzureOpenAI: provider.ProviderAzureOpenAI{
				APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
				Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
				Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
				APIVersion: r.getString("AZURE_OPENAI_API_VERSION", "2024-02-01"),
			},
			Ark: provider.ProviderArk{
				APIKey:  os.Getenv("ARK_API_KEY"),
				Model:   os.Getenv("ARK_MODEL"),
				BaseURL: os.Getenv("ARK_BASE_URL"),
				Region:  os.Getenv("ARK_REGION"),
			},
			Gemini: provider.ProviderGemini{
				APIKey: os.Getenv("GOOGLE_API_KEY"),
				Model:  r.getString("GEMINI_MODEL", "gemini-1.5-pro"),
			},
			Tuning: provider.SharedTuning{
				MaxTokens:   r.getInt("MODEL_MAX_TOKENS", DefaultMaxTokens),
				Temperature: r.getFloat32("MODEL_TEMPERATURE", DefaultTemperature),
			},
		},
		Embedding: embedder.Config{
			Provider:   embProvider,
			Model:      os.Getenv("EMBEDDING_MODEL"),
			Dimensions: r.getInt("EMBEDDING_DIMENSIONS", 0),
			APIKey:     embeddingKey(embProvider),
			Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
			APIVersion: r.getString("EMBEDDING_API_VERSION", "2024-02-01"),
			Deployment: os.Getenv("EMBEDDING_DEPLOYMENT"),
			Resilience: embedder.ResilientConfig{
				RequestsPerSecond: r.getFloat64("EMBEDDING_RPS", 0),
				MaxAttempts:       r.getInt("EMBEDDING_MAX_RETRIES", 5),
				BatchSize:         r.getInt("EMBEDDING_BATCH_SIZE", 64),
			},
		},
		Qdrant: rag.QdrantConfig{
			Host:       r.getString("QDRANT_HOST", DefaultQdrantHost),
			Port:       r.getInt("QDRANT_PORT", DefaultQdrantPort),
			Collection: r.getString("QDRANT_COLLECTION", DefaultCollection),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     r.getBool("QDRANT_TLS", false),
		},
		Distance:         distance,
		SourceDir:        r.getString("PDFRAG_SOURCE_DIR", DefaultSourceDir),
		MaxChunkSize:     r.getInt("CHUNK_MAX_SIZE", DefaultMaxChunkSize),
		OverlapChars:     r.getInt("CHUNK_OVERLAP", DefaultOverlapChars),
		Workers:          r.getInt("INGEST_WORKERS", 1),
		DuplicatePolicy:  policy,
		ManifestPath:     os.Getenv("PDFRAG_MANIFEST_DB"),
		TopK:             r.getInt("RAG_TOP_K", DefaultTopK),
		ScoreThreshold:   r.getThreshold("RAG_SCORE_THRESHOLD", DefaultScoreThreshold),
		DocumentFilter:   ParseDocumentFilter(os.Getenv("RAG_DOC_FILTER")),
		MaxContextTokens: r.getInt("RAG_MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		MaxHistoryTokens: r.getInt("CHAT_MAX_HISTORY_TOKENS", 0),
		MetricsAddr:      os.Getenv("PDFRAG_METRICS_ADDR"),
		Tracing: Tracing{
			Host:      r.getString("LANGFUSE_HOST", DefaultLangfuseHost),
			PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
			SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
		},
	}
	s.Embedding.Resilience.Normalize = s.Distance == rag.DistanceDot
	s.Embedding.Resilience.Dimension = embedder.DefaultDimensions(s.Embedding)

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(r.errs...))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks cross-field constraints that do not depend on the chat
// backend. Backend credentials are checked by provider.Config.Validate and
// embedder.Validate when those components are built.
func (s *Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Qdrant.Collection) == "" {
		errs = append(errs, errors.New("QDRANT_COLLECTION must not be empty"))
	}
	if s.Qdrant.Port <= 0 || s.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("QDRANT_PORT must be within 1..65535, got %d", s.Qdrant.Port))
	}
	if s.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_MAX_SIZE must be positive, got %d", s.MaxChunkSize))
	}
	if s.OverlapChars < 0 || s.OverlapChars >= s.MaxChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be within [0, CHUNK_MAX_SIZE), got %d", s.OverlapChars))
	}
	if s.Workers <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_WORKERS must be positive, got %d", s.Workers))
	}
	if s.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", s.TopK))
	}
	if s.ScoreThreshold != nil && (math.IsNaN(float64(*s.ScoreThreshold)) || math.IsInf(float64(*s.ScoreThreshold), 0)) {
		errs = append(errs, errors.New("RAG_SCORE_THRESHOLD must be a finite number"))
	}
	if s.Embedding.Resilience.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_MAX_RETRIES must be positive, got %d", s.Embedding.Resilience.MaxAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid settings: %w", errors.Join(errs...))
	}
	return nil
}

// ParseDocumentFilter splits a comma-separated list of document IDs,
// dropping blanks. An empty input yields nil.
func ParseDocumentFilter(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// embeddingKey falls back to the chat backend's key for the same vendor so a
// single OPENAI_API_KEY serves both.
func embeddingKey(backend string) string {
	if k := os.Getenv("EMBEDDING_API_KEY"); k != "" {
		return k
	}
	switch backend {
	case "openai", "":
		return os.Getenv("OPENAI_API_KEY")
	case "azure":
		return os.Getenv("AZURE_OPENAI_API_KEY")
	}
	return ""
}

// envReader parses typed environment variables and collects parse errors.
type envReader struct {
	errs []error
}

func (r *envReader) getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (r *envReader) getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return fallback
	}
	return i
}

func (r *envReader) getFloat64(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return fallback
	}
	return f
}

func (r *envReader) getFloat32(key string, fallback float32) float32 {
	return float32(r.getFloat64(key, float64(fallback)))
}

func (r *envReader) getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return fallback
	}
	return b
}

// threshold parses an optional score threshold. "off" or "none" disables it.
func (r *envReader) getThreshold(key string, fallback float32) *float32 {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return &fallback
	case "off", "none":
		return nil
	}
	f := r.getFloat32(key, fallback)
	return &f
}
