// Package rag holds the retrieval side of pdfrag: the vector-store contract
// and its Qdrant implementation, collection provisioning, the query
// retriever and the context assembler that renders hits for the chat model.
// Concrete backends satisfy the interfaces here so the ingestion and chat
// layers never depend on a specific store.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProvisioning marks a collection creation failure that is not a
	// benign "already exists" conflict. It is fatal to ingestion start-up.
	ErrProvisioning = errors.New("rag: collection provisioning failed")

	// ErrRetrieval marks a failure to embed a query or search the collection.
	// It is scoped to a single question.
	ErrRetrieval = errors.New("rag: retrieval failed")
)

// Payload field names stored on every point.
const (
	FieldDocumentID = "document_id"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
	FieldSourcePath = "source_path"
	FieldPageCount  = "page_count"
	FieldPageStart  = "page_start"
	FieldPageEnd    = "page_end"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceDot       Distance = "dot"
	DistanceCosine    Distance = "cosine"
	DistanceEuclidean Distance = "euclidean"
)

// ParseDistance maps a configuration string onto a Distance. Matching is
// case-insensitive and accepts "euclid" as an alias.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dot", "":
		return DistanceDot, nil
	case "cosine":
		return DistanceCosine, nil
	case "euclidean", "euclid":
		return DistanceEuclidean, nil
	default:
		return "", fmt.Errorf("rag: unknown distance %q (want dot, cosine or euclidean)", s)
	}
}

// CollectionSpec names a collection and fixes its vector shape.
type CollectionSpec struct {
	// Name is the collection name.
	Name string

	// Dimension is the vector length. It must equal the embedder's output size.
	Dimension uint64

	// Distance is the similarity metric.
	Distance Distance
}

// Point is one chunk ready to be written: its vector plus traceable payload.
type Point struct {
	// ID is a UUID string.
	ID string

	// Vector is the chunk embedding.
	Vector []float32

	// DocumentID is the source file name without extension.
	DocumentID string

	// ChunkIndex is the 0-based position of the chunk in its document.
	ChunkIndex int

	// Text is the chunk content.
	Text string

	// SourcePath is the path the document was read from. Optional.
	SourcePath string

	// PageCount is the number of pages in the source PDF. Zero when unknown.
	PageCount int

	// PageStart and PageEnd are the 1-based pages the chunk was taken from.
	// Both are zero when unknown.
	PageStart, PageEnd int
}

// Payload returns the point's payload as typed values.
func (p Point) Payload() Payload {
	pl := Payload{
		FieldDocumentID: StringValue(p.DocumentID),
		FieldChunkIndex: IntValue(int64(p.ChunkIndex)),
		FieldText:       StringValue(p.Text),
	}
	if p.SourcePath != "" {
		pl[FieldSourcePath] = StringValue(p.SourcePath)
	}
	if p.PageCount > 0 {
		pl[FieldPageCount] = IntValue(int64(p.PageCount))
	}
	if p.PageStart > 0 {
		pl[FieldPageStart] = IntValue(int64(p.PageStart))
		pl[FieldPageEnd] = IntValue(int64(max(p.PageEnd, p.PageStart)))
	}
	return pl
}

// Hit is one scored search result.
type Hit struct {
	// ID is the point identifier.
	ID string

	// Score is the similarity reported by the store.
	Score float32

	// Payload is the stored payload. May be nil.
	Payload Payload
}

// DocumentID returns the hit's document identifier, if present.
func (h Hit) DocumentID() (string, bool) {
	return h.Payload.Get(FieldDocumentID).AsString()
}

// ChunkIndex returns the hit's chunk index. ok is false when the field is
// absent or cannot be read as an integer.
func (h Hit) ChunkIndex() (int64, bool) {
	return h.Payload.Get(FieldChunkIndex).AsInt()
}

// Text returns the chunk text, or "" when absent.
func (h Hit) Text() string {
	s, _ := h.Payload.Get(FieldText).AsString()
	return s
}

// SourcePath returns the path the hit's document was read from, or "".
func (h Hit) SourcePath() string {
	s, _ := h.Payload.Get(FieldSourcePath).AsString()
	return s
}

// Pages returns the 1-based page range of the hit's chunk. ok is false when
// the point was stored without page information.
func (h Hit) Pages() (first, last int64, ok bool) {
	first, ok = h.Payload.Get(FieldPageStart).AsInt()
	if !ok || first <= 0 {
		return 0, 0, false
	}
	last, ok = h.Payload.Get(FieldPageEnd).AsInt()
	if !ok || last < first {
		last = first
	}
	return first, last, true
}

// SearchRequest describes one nearest-neighbour query.
type SearchRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// TopK bounds the number of hits. Must be > 0.
	TopK int

	// ScoreThreshold drops hits scoring below it when non-nil.
	ScoreThreshold *float32

	// DocumentIDs restricts results to these documents when non-empty.
	DocumentIDs []string
}

// Provisioner creates and removes collections.
type Provisioner interface {
	// EnsureCollection makes sure the collection exists. It is safe to call
	// repeatedly and concurrently for the same name.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error

	// DeleteCollection removes the collection and all of its points.
	DeleteCollection(ctx context.Context, name string) error
}

// VectorStore persists and searches points in one collection.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert writes points, replacing any with the same ID.
	Upsert(ctx context.Context, points []Point) error

	// Search returns hits in the store's ranking order, best first.
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)

	// DeleteDocument removes every point whose document_id equals documentID.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches the most relevant chunks for a question.
type Retriever interface {
	// Retrieve returns at most topK hits, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]Hit, error)
}
