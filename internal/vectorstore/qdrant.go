package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/resourced/internal/credentials"
)

// maxMessageSize bounds one gRPC message. Batched upserts of large corpora
// can exceed the 4MB gRPC default.
const maxMessageSize = 32 * 1024 * 1024

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("resourced.vectorstore.qdrant")

// Payload field names. These are the wire schema of an indexed record.
const (
	fieldCategory        = "resource_type"
	fieldResource        = "resource_name"
	fieldDocument        = "document"
	fieldChunkID         = "chunk_id"
	fieldFingerprint     = "file_hash"
	fieldContent         = "content"
	fieldEmbeddedContent = "embedded_content"
)

// Config holds per-process store settings. The connection endpoint itself is
// not configured here; it comes from the tenant credential on each request.
type Config struct {
	// Collection is the collection name used for all tenants' records
	// (each tenant has its own Qdrant instance, so the name is shared).
	Collection string

	// VectorSize is the embedding dimensionality. Must match the embedder.
	VectorSize uint64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// QdrantStore is a Store backed by Qdrant's native gRPC client.
type QdrantStore struct {
	client *qdrant.Client
	config Config
}

// Dial connects to the Qdrant instance named by the credential and verifies
// it with a health check. The caller bounds the dial with ctx; on failure
// nothing is cached and the returned error wraps ErrConnectionFailed.
func Dial(ctx context.Context, cred credentials.Credential, config Config) (*QdrantStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cred.Host,
		Port:   cred.Port,
		UseTLS: cred.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, cred, err)
	}

	return &QdrantStore{client: client, config: config}, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureSchema creates the collection and the payload field indexes used by
// search filters if they are missing. The existence check is delegated to
// Qdrant itself rather than a client-side cache.
func (s *QdrantStore) EnsureSchema(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureSchema")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}
	}

	// Field index creation is idempotent on the Qdrant side.
	for _, field := range []string{fieldCategory, fieldResource, fieldFingerprint} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.config.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("creating field index %s: %w", field, err)
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// UpsertRecords inserts a batch of records in one write.
func (s *QdrantStore) UpsertRecords(ctx context.Context, records []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.UpsertRecords")
	defer span.End()
	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.Collection),
	)

	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		id := rec.ID
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(rec.Embedding...),
			Payload: recordPayload(rec),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: upserting %d points: %v", ErrStoreWrite, len(points), err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// HasFingerprint reports whether any record carries the given fingerprint.
func (s *QdrantStore) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.HasFingerprint")
	defer span.End()

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{matchKeyword(fieldFingerprint, fingerprint)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		// A store with no collection yet has no fingerprints.
		exists, existsErr := s.client.CollectionExists(ctx, s.config.Collection)
		if existsErr == nil && !exists {
			span.SetStatus(codes.Ok, "collection absent")
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("counting fingerprint matches: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return count > 0, nil
}

// DistinctCategories enumerates the categories present in the collection
// using Qdrant's facet API.
func (s *QdrantStore) DistinctCategories(ctx context.Context) ([]Category, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DistinctCategories")
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		span.SetStatus(codes.Ok, "collection absent")
		return nil, nil
	}

	hits, err := s.client.Facet(ctx, &qdrant.FacetCounts{
		CollectionName: s.config.Collection,
		Key:            fieldCategory,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("faceting %s: %w", fieldCategory, err)
	}

	categories := make([]Category, 0, len(hits))
	for _, hit := range hits {
		if hit.GetCount() == 0 {
			continue
		}
		categories = append(categories, Category(hit.GetValue().GetStringValue()))
	}

	span.SetAttributes(attribute.Int("category_count", len(categories)))
	span.SetStatus(codes.Ok, "success")
	return categories, nil
}

// Search runs one filtered similarity search.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, category Category, resource string, pool, limit uint64) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.String("category", string(category)),
		attribute.String("resource", resource),
		attribute.Int64("limit", int64(limit)),
	)

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				matchKeyword(fieldCategory, string(category)),
				matchKeyword(fieldResource, resource),
			},
		},
		Limit:       qdrant.PtrOf(limit),
		Params:      &qdrant.SearchParams{HnswEf: qdrant.PtrOf(pool)},
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	results := make([]SearchResult, len(points))
	for i, point := range points {
		results[i] = resultFromPayload(point.GetPayload(), point.GetScore())
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// DeleteSuperseded removes records sharing the identity but carrying a
// fingerprint other than keepFingerprint.
func (s *QdrantStore) DeleteSuperseded(ctx context.Context, identity Identity, keepFingerprint string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteSuperseded")
	defer span.End()

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.config.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						matchKeyword(fieldResource, identity.Resource),
						matchKeyword(fieldDocument, identity.Document),
						matchInteger(fieldChunkID, int64(identity.ChunkID)),
					},
					MustNot: []*qdrant.Condition{
						matchKeyword(fieldFingerprint, keepFingerprint),
					},
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: deleting superseded records: %v", ErrStoreWrite, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Purge drops the collection and every record in it.
func (s *QdrantStore) Purge(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Purge")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.config.Collection))

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if !exists {
		span.SetStatus(codes.Ok, "collection absent")
		return nil
	}

	if err := s.client.DeleteCollection(ctx, s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: dropping collection %s: %v", ErrStoreWrite, s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// recordPayload converts a record to the Qdrant payload schema.
func recordPayload(rec Record) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		fieldCategory:        {Kind: &qdrant.Value_StringValue{StringValue: string(rec.Category)}},
		fieldResource:        {Kind: &qdrant.Value_StringValue{StringValue: rec.Resource}},
		fieldDocument:        {Kind: &qdrant.Value_StringValue{StringValue: rec.Document}},
		fieldChunkID:         {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.ChunkID)}},
		fieldFingerprint:     {Kind: &qdrant.Value_StringValue{StringValue: rec.Fingerprint}},
		fieldContent:         {Kind: &qdrant.Value_StringValue{StringValue: rec.Content}},
		fieldEmbeddedContent: {Kind: &qdrant.Value_StringValue{StringValue: rec.EmbeddedContent}},
	}
}

// resultFromPayload converts a scored point payload back to a SearchResult.
func resultFromPayload(payload map[string]*qdrant.Value, score float32) SearchResult {
	result := SearchResult{Score: score}
	for key, value := range payload {
		switch key {
		case fieldContent:
			result.Content = value.GetStringValue()
		case fieldCategory:
			result.Category = Category(value.GetStringValue())
		case fieldResource:
			result.Resource = value.GetStringValue()
		case fieldDocument:
			result.Document = value.GetStringValue()
		case fieldChunkID:
			result.ChunkID = int(value.GetIntegerValue())
		}
	}
	return result
}

func matchKeyword(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func matchInteger(key string, value int64) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Integer{Integer: value},
				},
			},
		},
	}
}
