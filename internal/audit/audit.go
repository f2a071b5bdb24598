// Package audit provides a structured audit logger for CLI command invocations.
// It logs the command name, the config file in effect and the resolved
// settings so operators can trace what happened without exposing secret
// values.
//
// Secrets are logged as presence/absence only, never their values.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/pdfrag-go/internal/config"
)

// secretEnvKeys lists environment variable names whose values must never be
// logged. Only presence ("set") or absence ("unset") is recorded.
var secretEnvKeys = map[string]bool{
	"OPENAI_API_KEY":       true,
	"AZURE_OPENAI_API_KEY": true,
	"ARK_API_KEY":          true,
	"GOOGLE_API_KEY":       true,
	"EMBEDDING_API_KEY":    true,
	"QDRANT_API_KEY":       true,
	"LANGFUSE_PUBLIC_KEY":  true,
	"LANGFUSE_SECRET_KEY":  true,
}

// LogCommandStart emits a structured audit log entry when a CLI command
// begins. s may be nil when settings could not be resolved; only the command
// and config path are logged then.
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string, s *config.Settings) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	if s != nil {
		attrs = append(attrs, settingsAttrs(s)...)
	}
	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start", attrs...)
}

// settingsAttrs flattens the operational settings into log attributes.
func settingsAttrs(s *config.Settings) []slog.Attr {
	threshold := "off"
	if s.ScoreThreshold != nil {
		threshold = strconv.FormatFloat(float64(*s.ScoreThreshold), 'f', -1, 32)
	}
	return []slog.Attr{
		slog.Group("chat",
			slog.String("provider", string(s.Chat.Backend)),
			slog.String("model", valOrUnset(s.Chat.ModelName())),
			slog.String("openai_api_key", presence(s.Chat.OpenAI.APIKey)),
			slog.String("azure_api_key", presence(s.Chat.AzureOpenAI.APIKey)),
			slog.String("ark_api_key", presence(s.Chat.Ark.APIKey)),
			slog.String("google_api_key", presence(s.Chat.Gemini.APIKey)),
		),
		slog.Group("embedding",
			slog.String("provider", s.Embedding.Provider),
			slog.String("model", s.Embedding.ResolvedModel()),
			slog.Int("dimension", s.Embedding.Resilience.Dimension),
			slog.String("api_key", presence(s.Embedding.APIKey)),
		),
		slog.Group("qdrant",
			slog.String("host", s.Qdrant.Host),
			slog.Int("port", s.Qdrant.Port),
			slog.String("collection", s.Qdrant.Collection),
			slog.String("distance", string(s.Distance)),
			slog.Bool("tls", s.Qdrant.UseTLS),
			slog.String("api_key", presence(s.Qdrant.APIKey)),
		),
		slog.Group("retrieval",
			slog.Int("top_k", s.TopK),
			slog.String("score_threshold", threshold),
			slog.String("document_filter", valOrUnset(strings.Join(s.DocumentFilter, ","))),
			slog.Int("max_context_tokens", s.MaxContextTokens),
		),
		slog.Group("ingest",
			slog.Int("max_chunk_size", s.MaxChunkSize),
			slog.Int("overlap_chars", s.OverlapChars),
			slog.Int("workers", s.Workers),
			slog.String("duplicate_policy", string(s.DuplicatePolicy)),
		),
		slog.String("langfuse", presence(s.Tracing.PublicKey+s.Tracing.SecretKey)),
		slog.String("log_level", valOrUnset(os.Getenv("LOG_LEVEL"))),
	}
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	// Redact home directory for privacy in logs.
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
