package health

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// LLMPinger probes a chat backend. When a zero-cost HealthChecker is
// available it is used exclusively; otherwise it sends a single-message
// Generate request.
type LLMPinger struct {
	model       model.BaseChatModel
	healthCheck provider.HealthChecker
	name        string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the chat backend.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return fmt.Errorf("%s: no chat model configured", p.name)
	}

	logging.FromContext(ctx).Debug("health: no listing endpoint, probing with generate; tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")}, model.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// EmbedderPinger probes the embedding backend by embedding one short text
// and checking the vector dimension.
type EmbedderPinger struct {
	embedder  rag.Embedder
	dimension int
	name      string
}

// NewEmbedderPinger constructs an EmbedderPinger. A zero dimension skips
// the dimension check.
func NewEmbedderPinger(e rag.Embedder, dimension int, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, dimension: dimension, name: name}
}

// Name returns the backend label.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds "ping".
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	if p.dimension > 0 && len(vecs[0]) != p.dimension {
		return fmt.Errorf("embedding dimension %d does not match configured %d", len(vecs[0]), p.dimension)
	}
	return nil
}
