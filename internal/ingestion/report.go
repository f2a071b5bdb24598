package ingestion

import (
	"fmt"
	"sort"
	"sync"
)

// Status is the outcome of one document.
type Status string

const (
	// StatusIngested means every chunk was written.
	StatusIngested Status = "ingested"
	// StatusPartial means at least one chunk failed; the rest were written.
	StatusPartial Status = "partial"
	// StatusUnchanged means the manifest reported the same content.
	StatusUnchanged Status = "unchanged"
	// StatusEmpty means extraction produced no text.
	StatusEmpty Status = "empty"
	// StatusFailed means the document could not be extracted.
	StatusFailed Status = "failed"
	// StatusCancelled means the context was cancelled before every chunk
	// was attempted; the chunks written so far stay in the store.
	StatusCancelled Status = "cancelled"
)

// DocumentResult summarises one document.
type DocumentResult struct {
	DocumentID string
	Path       string
	Status     Status
	// Chunks is the number of chunks the chunker produced.
	Chunks int
	// Written is the number of points successfully upserted.
	Written int
	// Err is set when Status is StatusFailed. It wraps ErrExtraction.
	Err error
}

// ChunkFailure records one chunk that could not be embedded or written.
// It wraps ErrEmbedding or ErrUpsert.
type ChunkFailure struct {
	DocumentID string
	ChunkIndex int
	Stage      Stage
	Err        error
}

// Error implements the error interface.
func (f *ChunkFailure) Error() string {
	return fmt.Sprintf("document %s chunk %d (%s): %v", f.DocumentID, f.ChunkIndex, f.Stage, f.Err)
}

// Unwrap returns the underlying error.
func (f *ChunkFailure) Unwrap() error { return f.Err }

// Report is the summary of one Ingest call.
type Report struct {
	mu sync.Mutex

	// Documents holds one result per processed document, in input order.
	Documents []DocumentResult

	// ChunkFailures lists failed chunks ordered by document then index.
	ChunkFailures []ChunkFailure

	// PointsWritten is the total number of points upserted.
	PointsWritten int
}

func (r *Report) addDocument(res DocumentResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Documents = append(r.Documents, res)
	r.PointsWritten += res.Written
}

func (r *Report) addFailures(fs []ChunkFailure) {
	if len(fs) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ChunkFailures = append(r.ChunkFailures, fs...)
}

// Count returns the number of documents with the given status.
func (r *Report) Count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.Documents {
		if d.Status == s {
			n++
		}
	}
	return n
}

// HasFailures reports whether any document or chunk failed or a document
// was left incomplete by cancellation.
func (r *Report) HasFailures() bool {
	return len(r.ChunkFailures) > 0 || r.Count(StatusFailed) > 0 || r.Count(StatusCancelled) > 0
}

// EventKind identifies a progress event.
type EventKind int

const (
	EventDocumentStarted EventKind = iota
	EventChunkDone
	EventDocumentDone
)

// Event reports pipeline progress to an optional observer.
type Event struct {
	Kind       EventKind
	DocumentID string
	// ChunkIndex is set for EventChunkDone.
	ChunkIndex int
	// Chunks is the document's chunk count once known.
	Chunks int
	// Status is set for EventDocumentDone.
	Status Status
	// Err is set for a failed chunk.
	Err error
}

func sortFailures(fs []ChunkFailure) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].DocumentID != fs[j].DocumentID {
			return fs[i].DocumentID < fs[j].DocumentID
		}
		return fs[i].ChunkIndex < fs[j].ChunkIndex
	})
}
