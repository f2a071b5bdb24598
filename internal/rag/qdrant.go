package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the collection all point operations target.
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// qdrantClient is the subset of *qdrant.Client the store uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, collectionName string) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// QdrantStore implements VectorStore and Provisioner backed by Qdrant.
type QdrantStore struct {
	client qdrantClient
	cfg    QdrantConfig
	log    *slog.Logger
}

// NewQdrantStore dials Qdrant and returns a store bound to cfg.Collection.
// The collection is not created here; call EnsureCollection before writing.
func NewQdrantStore(cfg QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return newQdrantStore(client, cfg, log), nil
}

func newQdrantStore(client qdrantClient, cfg QdrantConfig, log *slog.Logger) *QdrantStore {
	if log == nil {
		log = slog.Default()
	}
	return &QdrantStore{client: client, cfg: cfg, log: log.With(slog.String("collection", cfg.Collection))}
}

// Collection returns the name of the collection the store writes to.
func (s *QdrantStore) Collection() string { return s.cfg.Collection }

// EnsureCollection creates the collection unless an existence check reports
// it present. A failed check is treated like absence. The check and the
// create are not atomic, so an "already exists" error from the create means
// another writer won the race and is reported as success. Dimension and
// distance of an existing collection are not compared against spec.
func (s *QdrantStore) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	exists, err := s.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		s.log.Warn("qdrant: collection existence check failed, attempting create",
			slog.String("name", spec.Name), slog.Any("error", err))
	} else if exists {
		s.log.Debug("qdrant: collection already provisioned", slog.String("name", spec.Name))
		return nil
	}

	distance, err := toQdrantDistance(spec.Distance)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProvisioning, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     spec.Dimension,
			Distance: distance,
		}),
	})
	switch {
	case err == nil:
		s.log.Info("qdrant: collection created",
			slog.String("name", spec.Name),
			slog.Uint64("dimension", spec.Dimension),
			slog.String("distance", string(spec.Distance)),
		)
		return nil
	case isAlreadyExists(err):
		s.log.Info("qdrant: collection created concurrently, continuing", slog.String("name", spec.Name))
		return nil
	default:
		return fmt.Errorf("%w: create %q: %w", ErrProvisioning, spec.Name, err)
	}
}

// DeleteCollection drops the named collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("qdrant: delete collection %q: %w", name, err)
	}
	return nil
}

// Upsert writes points and waits for the write to be applied.
func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: toQdrantPayload(p.Payload()),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search runs one nearest-neighbour query and returns hits in Qdrant's
// ranking order.
func (s *QdrantStore) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if req.TopK <= 0 {
		return nil, fmt.Errorf("qdrant: topK must be positive, got %d", req.TopK)
	}

	limit := uint64(req.TopK)
	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: req.ScoreThreshold,
	}
	if len(req.DocumentIDs) > 0 {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(FieldDocumentID, req.DocumentIDs...)},
		}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:      pointID(r.GetId()),
			Score:   r.GetScore(),
			Payload: fromQdrantPayload(r.GetPayload()),
		})
	}
	return hits, nil
}

// DeleteDocument removes all points of one document.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(FieldDocumentID, documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete document %q: %w", documentID, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q: %w", s.cfg.Collection, err)
	}
	return n, nil
}

// Name returns the dependency label used by health probes.
func (s *QdrantStore) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// isAlreadyExists reports whether err is a collection-exists conflict.
// Qdrant signals it as gRPC AlreadyExists on most versions and as a plain
// message on some proxies.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

func toQdrantDistance(d Distance) (qdrant.Distance, error) {
	switch d {
	case DistanceDot:
		return qdrant.Distance_Dot, nil
	case DistanceCosine:
		return qdrant.Distance_Cosine, nil
	case DistanceEuclidean:
		return qdrant.Distance_Euclid, nil
	default:
		return qdrant.Distance_UnknownDistance, fmt.Errorf("qdrant: unsupported distance %q", d)
	}
}

func toQdrantPayload(p Payload) map[string]*qdrant.Value {
	out := make(map[string]*qdrant.Value, len(p))
	for k, v := range p {
		switch v.Kind() {
		case KindString:
			s, _ := v.AsString()
			out[k] = qdrant.NewValueString(s)
		case KindInt:
			i, _ := v.AsInt()
			out[k] = qdrant.NewValueInt(i)
		case KindFloat:
			f, _ := v.AsFloat()
			out[k] = qdrant.NewValueDouble(f)
		case KindBool:
			b, _ := v.AsBool()
			out[k] = qdrant.NewValueBool(b)
		}
	}
	return out
}

func fromQdrantPayload(m map[string]*qdrant.Value) Payload {
	if m == nil {
		return nil
	}
	out := make(Payload, len(m))
	for k, v := range m {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = StringValue(kind.StringValue)
		case *qdrant.Value_IntegerValue:
			out[k] = IntValue(kind.IntegerValue)
		case *qdrant.Value_DoubleValue:
			out[k] = FloatValue(kind.DoubleValue)
		case *qdrant.Value_BoolValue:
			out[k] = BoolValue(kind.BoolValue)
		}
	}
	return out
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
