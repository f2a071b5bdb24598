// Package ingestion implements the document ingestion pipeline: extract the
// text of each PDF, chunk it, embed every chunk and upsert one point per
// chunk into the vector store. A failing chunk or document is recorded in
// the Report and never aborts its siblings. This pipeline is invoked by the
// `pdfrag ingest` CLI command.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/extract"
	"github.com/54b3r/pdfrag-go/internal/manifest"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

var (
	// ErrExtraction marks a document whose text could not be read.
	ErrExtraction = errors.New("ingestion: extraction failed")
	// ErrEmbedding marks a chunk whose embedding call failed.
	ErrEmbedding = errors.New("ingestion: embedding failed")
	// ErrUpsert marks a chunk whose write to the vector store failed.
	ErrUpsert = errors.New("ingestion: upsert failed")
)

// pointNamespace seeds deterministic point IDs under the replace policy.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/pdfrag-go/points"))

// DuplicatePolicy decides what re-ingesting a document does to the points
// already stored for it.
type DuplicatePolicy string

const (
	// PolicyReplace deletes the document's existing points first and derives
	// point IDs from (documentId, chunkIndex), so a re-run replaces the
	// prior chunk set.
	PolicyReplace DuplicatePolicy = "replace"

	// PolicyAppend writes every point under a fresh random ID. Re-ingesting
	// a document accumulates duplicates.
	PolicyAppend DuplicatePolicy = "append"
)

// ParseDuplicatePolicy maps a configuration string onto a DuplicatePolicy.
// Empty selects PolicyReplace.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyReplace, "":
		return PolicyReplace, nil
	case PolicyAppend:
		return PolicyAppend, nil
	default:
		return "", fmt.Errorf("ingestion: unknown duplicate policy %q (want replace or append)", s)
	}
}

// Stage names the step of the pipeline a failure happened in.
type Stage string

const (
	StageExtract Stage = "extract"
	StageEmbed   Stage = "embed"
	StageUpsert  Stage = "upsert"
)

// Document is one source file to ingest.
type Document struct {
	// ID is the document identifier stored on every point, normally the file
	// name without extension.
	ID string

	// Path is the file to extract text from.
	Path string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Collection names the target collection. Used as the manifest key.
	Collection string

	// MaxChunkSize is the upper bound on chunk length in characters
	// (default 1000).
	MaxChunkSize int

	// OverlapChars is the approximate overlap between consecutive chunks
	// (default 200 when MaxChunkSize is also defaulted).
	OverlapChars int

	// Workers bounds the number of chunks embedded and upserted
	// concurrently within one document (default 1).
	Workers int

	// DuplicatePolicy selects replace or append semantics (default replace).
	DuplicatePolicy DuplicatePolicy

	// Force re-ingests documents the manifest reports as unchanged.
	Force bool
}

// Extractor reads the text of a source document.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Result, error)
}

// Manifest remembers which document versions are already ingested.
type Manifest interface {
	Lookup(ctx context.Context, collection, documentID string) (manifest.Entry, bool, error)
	Record(ctx context.Context, e manifest.Entry) error
	Forget(ctx context.Context, collection, documentID string) error
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithManifest enables skipping unchanged documents under PolicyReplace.
func WithManifest(m Manifest) Option {
	return func(p *Pipeline) { p.manifest = m }
}

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithProgress registers a callback invoked for every progress event.
// Chunk events come from worker goroutines but calls are serialised, so fn
// needs no locking of its own.
func WithProgress(fn func(Event)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// withHasher replaces the content hash function. Tests use it to avoid
// touching the filesystem.
func withHasher(fn func(path string) (string, error)) Option {
	return func(p *Pipeline) { p.hash = fn }
}

// Pipeline orchestrates extract → chunk → embed → upsert for a set of
// documents.
type Pipeline struct {
	extractor Extractor
	embedder  rag.Embedder
	store     rag.VectorStore
	chunker   *chunker.Chunker
	cfg       Config

	manifest Manifest
	metrics  *metrics.Metrics
	log      *slog.Logger
	progress func(Event)
	hash     func(path string) (string, error)
}

// NewPipeline constructs a Pipeline. Invalid chunking parameters fail here
// with a *chunker.ConfigError before any document is touched.
func NewPipeline(extractor Extractor, embedder rag.Embedder, store rag.VectorStore, cfg *Config, opts ...Option) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}

	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 1000
		if c.OverlapChars == 0 {
			c.OverlapChars = 200
		}
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.DuplicatePolicy == "" {
		c.DuplicatePolicy = PolicyReplace
	}
	if _, err := ParseDuplicatePolicy(string(c.DuplicatePolicy)); err != nil {
		return nil, err
	}

	ch, err := chunker.New(c.MaxChunkSize, c.OverlapChars)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		chunker:   ch,
		cfg:       c,
		log:       slog.Default(),
		progress:  func(Event) {},
		hash:      manifest.HashFile,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Ingest processes docs in order. Per-document and per-chunk failures are
// collected in the returned Report; the error is non-nil only when ctx is
// cancelled, in which case the Report covers the work done so far.
func (p *Pipeline) Ingest(ctx context.Context, docs []Document) (*Report, error) {
	report := &Report{}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingestion: cancelled: %w", err)
		}
		res := p.ingestDocument(ctx, doc, report)
		report.addDocument(res)
		p.progress(Event{Kind: EventDocumentDone, DocumentID: doc.ID, Status: res.Status, Chunks: res.Chunks})
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("ingestion: cancelled: %w", err)
	}
	return report, nil
}

func (p *Pipeline) ingestDocument(ctx context.Context, doc Document, report *Report) DocumentResult {
	log := p.log.With(slog.String("document_id", doc.ID))
	res := DocumentResult{DocumentID: doc.ID, Path: doc.Path}
	p.progress(Event{Kind: EventDocumentStarted, DocumentID: doc.ID})

	hash, unchanged := p.checkManifest(ctx, doc, log)
	if unchanged {
		log.Info("ingestion: document unchanged, skipping")
		res.Status = StatusUnchanged
		p.metrics.Document(metrics.DocumentUnchanged)
		return res
	}

	start := time.Now()
	extracted, err := p.extractor.Extract(ctx, doc.Path)
	p.metrics.ObserveStage(string(StageExtract), time.Since(start))
	if err != nil {
		log.Error("ingestion: extraction failed", slog.String("path", doc.Path), slog.Any("error", err))
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s: %w", ErrExtraction, doc.Path, err)
		p.metrics.Document(metrics.DocumentFailed)
		return res
	}

	chunks := p.chunker.Chunks(extracted.Text)
	if len(chunks) == 0 {
		log.Warn("ingestion: document has no extractable text, skipping", slog.String("path", doc.Path))
		res.Status = StatusEmpty
		p.metrics.Document(metrics.DocumentEmpty)
		return res
	}
	res.Chunks = len(chunks)
	log.Debug("ingestion: chunked", slog.Int("chunks", len(chunks)), slog.Int("pages", extracted.PageCount))

	if p.cfg.DuplicatePolicy == PolicyReplace {
		// Deterministic IDs overwrite indices 0..N-1 even if this fails; only
		// trailing chunks of a longer previous version would linger.
		if err := p.store.DeleteDocument(ctx, doc.ID); err != nil {
			log.Warn("ingestion: could not delete previous points", slog.Any("error", err))
		}
	}

	written, failures := p.writeChunks(ctx, doc, newLayout(extracted), chunks)
	res.Written = written
	report.addFailures(failures)

	// Any outcome short of a complete write must clear the manifest entry,
	// even after cancellation, or the next run would skip the document.
	switch {
	case written+len(failures) < len(chunks):
		res.Status = StatusCancelled
		p.metrics.Document(metrics.DocumentFailed)
		p.forgetManifest(context.WithoutCancel(ctx), doc, log)
	case len(failures) == 0:
		res.Status = StatusIngested
		p.metrics.Document(metrics.DocumentIngested)
		p.recordManifest(ctx, doc, hash, len(chunks), log)
	default:
		res.Status = StatusPartial
		p.metrics.Document(metrics.DocumentFailed)
		p.forgetManifest(context.WithoutCancel(ctx), doc, log)
	}
	log.Info("ingestion: document processed",
		slog.String("status", string(res.Status)),
		slog.Int("chunks", res.Chunks),
		slog.Int("written", res.Written),
	)
	return res
}

// layout is what the extractor reported about a document's pages.
type layout struct {
	pageCount int
	pages     *chunker.PageMap
}

func newLayout(r extract.Result) layout {
	return layout{pageCount: r.PageCount, pages: chunker.NewPageMap(r.Pages)}
}

// writeChunks embeds and upserts every chunk with at most cfg.Workers in
// flight. Indices come from the chunker and are fixed before dispatch.
func (p *Pipeline) writeChunks(ctx context.Context, doc Document, lay layout, chunks []chunker.Chunk) (int, []ChunkFailure) {
	var (
		mu       sync.Mutex
		written  int
		failures []ChunkFailure
	)

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, ch := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := p.writeChunk(ctx, doc, lay, ch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, *err)
			} else {
				written++
			}
			p.progress(Event{Kind: EventChunkDone, DocumentID: doc.ID, ChunkIndex: ch.Index, Chunks: len(chunks), Err: errOrNil(err)})
			return nil
		})
	}
	_ = g.Wait()

	sortFailures(failures)
	return written, failures
}

func (p *Pipeline) writeChunk(ctx context.Context, doc Document, lay layout, ch chunker.Chunk) *ChunkFailure {
	log := p.log.With(slog.String("document_id", doc.ID), slog.Int("chunk_index", ch.Index))

	start := time.Now()
	vecs, err := p.embedder.Embed(ctx, []string{ch.Text})
	p.metrics.ObserveStage(string(StageEmbed), time.Since(start))
	if err == nil && (len(vecs) != 1 || len(vecs[0]) == 0) {
		err = fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	if err != nil {
		log.Error("ingestion: embedding failed", slog.Any("error", err))
		p.metrics.Chunk(string(StageEmbed), metrics.OutcomeError)
		return &ChunkFailure{DocumentID: doc.ID, ChunkIndex: ch.Index, Stage: StageEmbed, Err: fmt.Errorf("%w: %w", ErrEmbedding, err)}
	}
	p.metrics.Chunk(string(StageEmbed), metrics.OutcomeOK)

	point := rag.Point{
		ID:         p.pointID(doc.ID, ch.Index),
		Vector:     vecs[0],
		DocumentID: doc.ID,
		ChunkIndex: ch.Index,
		Text:       ch.Text,
		SourcePath: doc.Path,
		PageCount:  lay.pageCount,
	}
	point.PageStart, point.PageEnd = lay.pages.PagesOf(ch)

	start = time.Now()
	err = p.store.Upsert(ctx, []rag.Point{point})
	p.metrics.ObserveStage(string(StageUpsert), time.Since(start))
	if err != nil {
		log.Error("ingestion: upsert failed", slog.Any("error", err))
		p.metrics.Chunk(string(StageUpsert), metrics.OutcomeError)
		return &ChunkFailure{DocumentID: doc.ID, ChunkIndex: ch.Index, Stage: StageUpsert, Err: fmt.Errorf("%w: %w", ErrUpsert, err)}
	}
	p.metrics.Chunk(string(StageUpsert), metrics.OutcomeOK)
	return nil
}

// pointID returns the point identifier for a chunk under the configured
// duplicate policy.
func (p *Pipeline) pointID(documentID string, index int) string {
	if p.cfg.DuplicatePolicy == PolicyAppend {
		return uuid.NewString()
	}
	return PointID(documentID, index)
}

// PointID is the deterministic identifier of chunk index of documentID
// under PolicyReplace: a name-based (SHA-1) UUID of "documentID#index".
func PointID(documentID string, index int) string {
	return uuid.NewSHA1(pointNamespace, []byte(documentID+"#"+strconv.Itoa(index))).String()
}

// checkManifest hashes the document and reports whether the manifest holds
// the same version. The hash is returned for recording after success.
func (p *Pipeline) checkManifest(ctx context.Context, doc Document, log *slog.Logger) (string, bool) {
	if p.manifest == nil || p.cfg.DuplicatePolicy != PolicyReplace {
		return "", false
	}
	hash, err := p.hash(doc.Path)
	if err != nil {
		log.Debug("ingestion: could not hash document", slog.Any("error", err))
		return "", false
	}
	if p.cfg.Force {
		return hash, false
	}
	entry, ok, err := p.manifest.Lookup(ctx, p.cfg.Collection, doc.ID)
	if err != nil {
		log.Warn("ingestion: manifest lookup failed", slog.Any("error", err))
		return hash, false
	}
	return hash, ok && entry.ContentHash == hash
}

func (p *Pipeline) recordManifest(ctx context.Context, doc Document, hash string, chunks int, log *slog.Logger) {
	if p.manifest == nil || hash == "" {
		return
	}
	err := p.manifest.Record(ctx, manifest.Entry{
		Collection:  p.cfg.Collection,
		DocumentID:  doc.ID,
		ContentHash: hash,
		SourcePath:  doc.Path,
		Chunks:      chunks,
	})
	if err != nil {
		log.Warn("ingestion: manifest record failed", slog.Any("error", err))
	}
}

func (p *Pipeline) forgetManifest(ctx context.Context, doc Document, log *slog.Logger) {
	if p.manifest == nil || p.cfg.DuplicatePolicy != PolicyReplace {
		return
	}
	if err := p.manifest.Forget(ctx, p.cfg.Collection, doc.ID); err != nil {
		log.Warn("ingestion: manifest forget failed", slog.Any("error", err))
	}
}

func errOrNil(f *ChunkFailure) error {
	if f == nil {
		return nil
	}
	return f
}
