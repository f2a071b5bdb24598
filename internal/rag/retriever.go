package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// RetrieverOption configures a DefaultRetriever.
type RetrieverOption func(*DefaultRetriever)

// WithScoreThreshold drops hits scoring below threshold.
func WithScoreThreshold(threshold float32) RetrieverOption {
	return func(r *DefaultRetriever) { r.scoreThreshold = &threshold }
}

// WithDocumentFilter restricts retrieval to the given document IDs.
// An empty list leaves retrieval unrestricted.
func WithDocumentFilter(ids ...string) RetrieverOption {
	return func(r *DefaultRetriever) { r.documentIDs = ids }
}

// DefaultRetriever implements Retriever by embedding the query once and
// issuing a single search against the store.
type DefaultRetriever struct {
	embedder       Embedder
	store          VectorStore
	defaultTopK    int
	scoreThreshold *float32
	documentIDs    []string
}

// NewRetriever constructs a DefaultRetriever. defaultTopK is used when
// Retrieve is called with topK <= 0.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int, opts ...RetrieverOption) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = 6
	}
	r := &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Retrieve embeds query and returns at most topK hits, best first. Every
// failure wraps ErrRetrieval.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrieval, err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned empty result for query", ErrRetrieval)
	}

	hits, err := r.store.Search(ctx, SearchRequest{
		Vector:         vecs[0],
		TopK:           topK,
		ScoreThreshold: r.scoreThreshold,
		DocumentIDs:    r.documentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", ErrRetrieval, err)
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}

	logging.FromContext(ctx).Debug("rag: retrieved",
		slog.Int("top_k", topK),
		slog.Int("hits", len(hits)),
	)
	return hits, nil
}
