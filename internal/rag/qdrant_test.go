package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// fakeQdrant is an in-memory qdrantClient. Existence and creation results
// can be scripted to simulate races and outages.
type fakeQdrant struct {
	mu sync.Mutex

	collections map[string]*qdrant.CreateCollection

	existsErr  error
	createErr  error
	queryErr   error
	lastQuery  *qdrant.QueryPoints
	lastDelete *qdrant.DeletePoints
	upserts    []*qdrant.UpsertPoints
	scored     []*qdrant.ScoredPoint
	creates    int
	count      uint64
	healthErr  error
	closed     bool
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]*qdrant.CreateCollection{}}
}

func (f *fakeQdrant) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.collections[name]
	return ok, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.collections[req.GetCollectionName()]; ok {
		return status.Error(codes.AlreadyExists, "collection already exists")
	}
	f.collections[req.GetCollectionName()] = req
	return nil
}

func (f *fakeQdrant) DeleteCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = req
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.scored, nil
}

func (f *fakeQdrant) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDelete = req
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Count(_ context.Context, _ *qdrant.CountPoints) (uint64, error) {
	return f.count, nil
}

func (f *fakeQdrant) HealthCheck(_ context.Context) (*qdrant.HealthCheckReply, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &qdrant.HealthCheckReply{}, nil
}

func (f *fakeQdrant) Close() error {
	f.closed = true
	return nil
}

func testStore(c qdrantClient) *QdrantStore {
	return newQdrantStore(c, QdrantConfig{Collection: "CollectionWithData"}, logging.Discard())
}

var testSpec = CollectionSpec{Name: "CollectionWithData", Dimension: 3072, Distance: DistanceDot}

func TestEnsureCollection_CreatesWhenAbsent(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	s := testStore(fake)

	if err := s.EnsureCollection(context.Background(), testSpec); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	req, ok := fake.collections["CollectionWithData"]
	if !ok {
		t.Fatal("collection was not created")
	}
	params := req.GetVectorsConfig().GetParams()
	if params.GetSize() != 3072 {
		t.Errorf("size: want 3072, got %d", params.GetSize())
	}
	if params.GetDistance() != qdrant.Distance_Dot {
		t.Errorf("distance: want Dot, got %v", params.GetDistance())
	}
}

func TestEnsureCollection_TwiceIsIdempotent(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	s := testStore(fake)
	ctx := context.Background()

	for i := range 2 {
		if err := s.EnsureCollection(ctx, testSpec); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if fake.creates != 1 {
		t.Errorf("want exactly 1 create, got %d", fake.creates)
	}
}

func TestEnsureCollection_ConflictIsAbsorbed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
	}{
		{"grpc already exists", status.Error(codes.AlreadyExists, "conflict")},
		{"wrapped grpc", fmt.Errorf("create: %w", status.Error(codes.AlreadyExists, "conflict"))},
		{"message only", errors.New("Wrong input: Collection `CollectionWithData` already exists!")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fake := newFakeQdrant()
			// The existence check reports absence, then creation loses the race.
			fake.createErr = tc.err
			if err := testStore(fake).EnsureCollection(context.Background(), testSpec); err != nil {
				t.Fatalf("conflict should be absorbed, got %v", err)
			}
		})
	}
}

func TestEnsureCollection_OtherCreateErrorIsFatal(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	fake.createErr = status.Error(codes.Unavailable, "connection refused")

	err := testStore(fake).EnsureCollection(context.Background(), testSpec)
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("want ErrProvisioning, got %v", err)
	}
}

func TestEnsureCollection_FailedCheckFallsBackToCreate(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	fake.existsErr = errors.New("timeout")

	if err := testStore(fake).EnsureCollection(context.Background(), testSpec); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if fake.creates != 1 {
		t.Errorf("want 1 create attempt, got %d", fake.creates)
	}
}

func TestEnsureCollection_UnknownDistance(t *testing.T) {
	t.Parallel()
	spec := testSpec
	spec.Distance = "manhattan"

	err := testStore(newFakeQdrant()).EnsureCollection(context.Background(), spec)
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("want ErrProvisioning, got %v", err)
	}
}

func TestQdrantStore_UpsertPayload(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	s := testStore(fake)

	p := Point{
		ID:         "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		Vector:     []float32{0.1, 0.2},
		DocumentID: "Alpha",
		ChunkIndex: 2,
		Text:       "hello",
		SourcePath: "data/Alpha.pdf",
		PageCount:  4,
		PageStart:  2,
		PageEnd:    3,
	}
	if err := s.Upsert(context.Background(), []Point{p}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(fake.upserts) != 1 {
		t.Fatalf("want 1 upsert call, got %d", len(fake.upserts))
	}
	req := fake.upserts[0]
	if req.GetCollectionName() != "CollectionWithData" || !req.GetWait() {
		t.Errorf("unexpected request: collection=%q wait=%v", req.GetCollectionName(), req.GetWait())
	}
	got := req.GetPoints()[0]
	if got.GetId().GetUuid() != p.ID {
		t.Errorf("id: got %q", got.GetId().GetUuid())
	}
	pl := fromQdrantPayload(got.GetPayload())
	if v, _ := pl.Get(FieldDocumentID).AsString(); v != "Alpha" {
		t.Errorf("document_id: got %q", v)
	}
	if v, _ := pl.Get(FieldChunkIndex).AsInt(); v != 2 {
		t.Errorf("chunk_index: got %d", v)
	}
	if v, _ := pl.Get(FieldPageCount).AsInt(); v != 4 {
		t.Errorf("page_count: got %d", v)
	}
	if first, last, ok := (Hit{Payload: pl}).Pages(); !ok || first != 2 || last != 3 {
		t.Errorf("pages: got %d-%d ok=%v", first, last, ok)
	}
}

func TestQdrantStore_UpsertEmptyIsNoop(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	if err := testStore(fake).Upsert(context.Background(), nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(fake.upserts) != 0 {
		t.Errorf("want no upsert calls, got %d", len(fake.upserts))
	}
}

func TestQdrantStore_SearchMapsHitsAndFilter(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	fake.scored = []*qdrant.ScoredPoint{
		{
			Id:    qdrant.NewIDUUID("a"),
			Score: 0.9,
			Payload: map[string]*qdrant.Value{
				FieldDocumentID: qdrant.NewValueString("Alpha"),
				FieldChunkIndex: qdrant.NewValueInt(1),
				FieldText:       qdrant.NewValueString("first"),
			},
		},
		{Id: qdrant.NewIDNum(7), Score: 0.5},
	}
	s := testStore(fake)

	threshold := float32(0.25)
	hits, err := s.Search(context.Background(), SearchRequest{
		Vector:         []float32{1, 0},
		TopK:           6,
		ScoreThreshold: &threshold,
		DocumentIDs:    []string{"Alpha", "Beta"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "a" || hits[0].Text() != "first" {
		t.Errorf("hit[0]: %+v", hits[0])
	}
	if idx, ok := hits[0].ChunkIndex(); !ok || idx != 1 {
		t.Errorf("hit[0] chunk index: %d %v", idx, ok)
	}
	if hits[1].ID != "7" {
		t.Errorf("hit[1] id: want 7, got %q", hits[1].ID)
	}

	q := fake.lastQuery
	if q.GetLimit() != 6 {
		t.Errorf("limit: want 6, got %d", q.GetLimit())
	}
	if q.GetScoreThreshold() != 0.25 {
		t.Errorf("score threshold: got %v", q.GetScoreThreshold())
	}
	if len(q.GetFilter().GetMust()) != 1 {
		t.Errorf("want one document filter condition, got %d", len(q.GetFilter().GetMust()))
	}
}

func TestQdrantStore_SearchRejectsNonPositiveTopK(t *testing.T) {
	t.Parallel()
	if _, err := testStore(newFakeQdrant()).Search(context.Background(), SearchRequest{TopK: 0}); err == nil {
		t.Fatal("want error for topK=0")
	}
}

func TestQdrantStore_DeleteDocumentUsesFilter(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	if err := testStore(fake).DeleteDocument(context.Background(), "Alpha"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if fake.lastDelete.GetPoints().GetFilter() == nil {
		t.Fatal("delete should select points by filter")
	}
}

func TestQdrantStore_DeleteCollectionAndCount(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	fake.count = 42
	s := testStore(fake)
	ctx := context.Background()

	if n, err := s.Count(ctx); err != nil || n != 42 {
		t.Errorf("Count = %d, %v; want 42", n, err)
	}
	if err := s.EnsureCollection(ctx, testSpec); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := s.DeleteCollection(ctx, testSpec.Name); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if exists, _ := fake.CollectionExists(ctx, testSpec.Name); exists {
		t.Error("collection still exists after delete")
	}
}

func TestQdrantStore_PingAndClose(t *testing.T) {
	t.Parallel()
	fake := newFakeQdrant()
	s := testStore(fake)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	fake.healthErr = errors.New("down")
	if err := s.Ping(context.Background()); err == nil {
		t.Error("want ping error")
	}
	if err := s.Close(); err != nil || !fake.closed {
		t.Errorf("Close: err=%v closed=%v", err, fake.closed)
	}
}

func TestParseDistance(t *testing.T) {
	t.Parallel()

	cases := map[string]Distance{
		"":          DistanceDot,
		"Dot":       DistanceDot,
		"cosine":    DistanceCosine,
		"euclid":    DistanceEuclidean,
		"EUCLIDEAN": DistanceEuclidean,
	}
	for in, want := range cases {
		got, err := ParseDistance(in)
		if err != nil || got != want {
			t.Errorf("ParseDistance(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseDistance("hamming"); err == nil {
		t.Error("want error for unknown distance")
	}
}
