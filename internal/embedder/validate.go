package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat models,
// which are not suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known chat
// model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate checks cfg before any network call. Missing credentials are
// errors. A chat-looking model name or a dimension that disagrees with the
// model's native size only logs a warning.
func Validate(cfg Config, log *slog.Logger) error {
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if cfg.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "ollama":
	default:
		return fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure)", cfg.Provider)
	}

	model := cfg.ResolvedModel()
	if looksLikeChatModel(model) {
		log.Warn("embedder: embedding model looks like a chat model",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. text-embedding-3-large, nomic-embed-text"),
		)
	}

	if native, ok := knownDimensions[strings.ToLower(model)]; ok && cfg.Dimensions > 0 && cfg.Dimensions != native {
		// OpenAI v3 models can shorten vectors on request; others cannot.
		if !strings.HasPrefix(strings.ToLower(model), "text-embedding-3") || cfg.Dimensions > native {
			log.Warn("embedder: configured dimensions differ from the model's native size",
				slog.String("model", model),
				slog.Int("configured", cfg.Dimensions),
				slog.Int("native", native),
			)
		}
	}
	return nil
}
