// Package semantic owns all Qdrant operations: collection lifecycle, point
// upsert with dimension validation, and cosine similarity search.
package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
)

// VectorStore is the sole owner of all Qdrant operations.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dims        int
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// dims is the embedding dimension every stored vector must have.
func New(addr, collection string, dims int) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dims:        dims,
	}, nil
}

// NewWithClients builds a VectorStore over existing Qdrant clients. Used by
// tests to inject fakes.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string, dims int) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		collection:  collection,
		dims:        dims,
	}
}

// Close closes the underlying gRPC connection, when one exists.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. Idempotent:
// calling it again against an existing collection is a no-op.
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return domain.NewProviderError("vectordb", "list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}
	return v.createCollection(ctx)
}

func (v *VectorStore) createCollection(ctx context.Context) error {
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(v.dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return domain.NewProviderError("vectordb", "create collection "+v.collection, err)
	}
	return nil
}

// Clear drops and recreates the collection. Destructive; maintenance only.
func (v *VectorStore) Clear(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return domain.NewProviderError("vectordb", "delete collection "+v.collection, err)
	}
	return v.createCollection(ctx)
}

// Upsert stores records in Qdrant. Vector dimensions are validated here at
// the adapter boundary rather than trusted to the server. Records without an
// ID get one derived from a monotonic-time-plus-index composite; repeated
// ingestion of the same logical chunk therefore creates new points.
func (v *VectorStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	base := time.Now().UnixNano()
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != v.dims {
			return domain.NewValidationError(
				"vector",
				fmt.Sprintf("record %d: len %d, want %d", i, len(r.Vector), v.dims),
				domain.ErrDimensionMismatch,
			)
		}

		id := r.ID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%d-%d", base, i)).String()
		}

		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: id},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.NewProviderError("vectordb", fmt.Sprintf("upsert %d points", len(records)), err)
	}
	return nil
}

// DeleteByDocID removes all points belonging to a document. Used when a
// source article is re-ingested deliberately.
func (v *VectorStore) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("doc_id", docID),
					},
				},
			},
		},
	})
	if err != nil {
		return domain.NewProviderError("vectordb", "delete by doc_id "+docID, err)
	}
	return nil
}

// Search performs k-NN similarity search and returns up to limit documents
// in descending score order. Hits scoring below threshold are excluded when
// threshold > 0.
func (v *VectorStore) Search(ctx context.Context, vector []float32, limit int, threshold float32) ([]Document, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if threshold > 0 {
		req.ScoreThreshold = &threshold
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, domain.NewProviderError("vectordb", "search", err)
	}

	results := make([]Document, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = fromScoredPoint(r)
	}
	return results, nil
}

// toPayload converts a record payload into Qdrant typed values.
func toPayload(payload map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		switch tv := val.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return out
}

// fromScoredPoint maps a Qdrant hit back into a Document, lifting the
// well-known payload keys and keeping the rest in Meta.
func fromScoredPoint(r *pb.ScoredPoint) Document {
	doc := Document{
		ID:    r.GetId().GetUuid(),
		Score: r.GetScore(),
		Meta:  make(map[string]string),
	}
	for k, val := range r.GetPayload() {
		switch k {
		case "text":
			doc.Text = val.GetStringValue()
		case "doc_id":
			doc.DocID = val.GetStringValue()
		case "doc_title":
			doc.Title = val.GetStringValue()
		case "source":
			doc.Source = val.GetStringValue()
		case "chunk_index":
			doc.ChunkIndex = int(val.GetIntegerValue())
		default:
			if s := val.GetStringValue(); s != "" {
				doc.Meta[k] = s
			} else {
				doc.Meta[k] = fmt.Sprint(valAny(val))
			}
		}
	}
	return doc
}

func valAny(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
