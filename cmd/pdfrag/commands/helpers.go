package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/pdfrag-go/internal/chat"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/embedder"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/manifest"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

type settingsKey struct{}

// withRuntime stores the logger and resolved settings for subcommands.
func withRuntime(ctx context.Context, log *slog.Logger, s *config.Settings) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, log)
	return context.WithValue(ctx, settingsKey{}, s)
}

// settingsFrom returns the settings resolved by the root command.
func settingsFrom(ctx context.Context) (*config.Settings, error) {
	s, ok := ctx.Value(settingsKey{}).(*config.Settings)
	if !ok || s == nil {
		return nil, fmt.Errorf("settings were not resolved")
	}
	return s, nil
}

// openStore connects to Qdrant for the configured collection.
func openStore(s *config.Settings, log *slog.Logger) (*rag.QdrantStore, error) {
	store, err := rag.NewQdrantStore(s.Qdrant, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", s.Qdrant.Host, s.Qdrant.Port, err)
	}
	return store, nil
}

// newEmbedder validates the embedding configuration and builds the
// rate-limited embedder.
func newEmbedder(s *config.Settings, log *slog.Logger) (rag.Embedder, error) {
	if err := embedder.Validate(s.Embedding, log); err != nil {
		return nil, err
	}
	emb, err := embedder.New(s.Embedding, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", s.Embedding.Provider),
		slog.String("model", s.Embedding.ResolvedModel()),
	)
	return emb, nil
}

// openManifest opens the ingestion ledger, or returns nil when it is
// disabled.
func openManifest(s *config.Settings) (*manifest.Store, error) {
	path := s.ManifestPath
	if path == config.ManifestDisabled {
		return nil, nil
	}
	if path == "" {
		p, err := manifest.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	m, err := manifest.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	return m, nil
}

// buildSession wires the chat model, embedder and Qdrant retriever into a
// chat session. The returned close function releases the Qdrant connection.
func buildSession(ctx context.Context, s *config.Settings, topK int, m *metrics.Metrics, log *slog.Logger) (*chat.Session, func(), error) {
	if err := s.Chat.Validate(); err != nil {
		return nil, nil, err
	}
	chatModel, err := provider.New(ctx, &s.Chat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(s.Chat.Backend)),
		slog.String("model", s.Chat.ModelName()),
	)

	emb, err := newEmbedder(s, log)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(s, log)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if cerr := store.Close(); cerr != nil {
			log.Warn("qdrant: close failed", slog.String("error", cerr.Error()))
		}
	}

	var opts []rag.RetrieverOption
	if s.ScoreThreshold != nil {
		opts = append(opts, rag.WithScoreThreshold(*s.ScoreThreshold))
	}
	if len(s.DocumentFilter) > 0 {
		opts = append(opts, rag.WithDocumentFilter(s.DocumentFilter...))
	}
	if topK <= 0 {
		topK = s.TopK
	}
	retriever, err := rag.NewRetriever(emb, store, topK, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	session, err := chat.New(&chat.Config{
		ChatModel:        chatModel,
		Retriever:        retriever,
		TopK:             topK,
		Temperature:      s.Chat.Tuning.Temperature,
		OmitTemperature:  !s.Chat.SupportsTemperature(),
		MaxTokens:        s.Chat.Tuning.MaxTokens,
		MaxContextTokens: s.MaxContextTokens,
		MaxHistoryTokens: s.MaxHistoryTokens,
		Metrics:          m,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return session, closeStore, nil
}
