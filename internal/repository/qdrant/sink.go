// Package qdrant publishes embedded corpora to a Qdrant collection for downstream consumers.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

// upsertChunk bounds the number of points per Upsert request.
const upsertChunk = 256

// pointsAPI is the consumer subset of pb.PointsClient (ISP).
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
}

// collectionsAPI is the consumer subset of pb.CollectionsClient (ISP).
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Sink writes records as Qdrant points.
type Sink struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	collection  string
	logger      *zap.Logger
}

// New dials Qdrant at the given gRPC address.
func New(addr, collection string, logger *zap.Logger) (*Sink, error) {
	if addr == "" || collection == "" {
		return nil, errors.New("qdrant addr and collection are required")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	s := newWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, logger)
	s.conn = conn
	return s, nil
}

func newWithClients(points pointsAPI, collections collectionsAPI, collection string, logger *zap.Logger) *Sink {
	return &Sink{points: points, collections: collections, collection: collection, logger: logger}
}

// Close closes the underlying gRPC connection.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("close qdrant conn: %w", err)
	}
	return nil
}

// Publish upserts every embedded record of c. The collection is created on
// first use with the corpus dimension and cosine distance.
func (s *Sink) Publish(ctx context.Context, c *domcorpus.Corpus) error {
	dim := c.Dimension()
	if dim == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return err
	}

	points := make([]*pb.PointStruct, 0, c.Len())
	for i := range c.Len() {
		r := c.At(i)
		if !r.HasVector() {
			continue
		}
		points = append(points, toPoint(r))
	}

	wait := true
	for start := 0; start < len(points); start += upsertChunk {
		end := min(start+upsertChunk, len(points))
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("upsert %d points into %s: %w", end-start, s.collection, err)
		}
	}

	s.logger.Info("Published corpus to qdrant",
		zap.String("collection", s.collection),
		zap.Int("points", len(points)),
	)
	return nil
}

func (s *Sink) ensureCollection(ctx context.Context, dim int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, col := range list.GetCollections() {
		if col.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim), //nolint:gosec // dimension is positive
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

func toPoint(r record.Record) *pb.PointStruct {
	payload := make(map[string]*pb.Value, len(r.Attributes())+2)
	for k, v := range r.Attributes() {
		if pv := toValue(v); pv != nil {
			payload[k] = pv
		}
	}
	payload["id"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.ID()}}
	payload["text"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: r.Text()}}

	return &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: record.PointID(r.ID())},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: r.Vector()},
			},
		},
		Payload: payload,
	}
}

func toValue(v any) *pb.Value {
	switch tv := v.(type) {
	case nil:
		return nil
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	case []any:
		items := make([]string, 0, len(tv))
		for _, item := range tv {
			if item != nil {
				items = append(items, fmt.Sprint(item))
			}
		}
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: strings.Join(items, " ")}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}
