package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
)

const qdrantTimeout = 30 * time.Second

// QdrantStore is the out-of-process vector store backend, for deployments
// where the index must outlive (or be shared across) service instances.
type QdrantStore struct {
	points     pb.PointsClient
	conn       *grpc.ClientConn
	collection string
	dimensions uint64
}

var _ domain.VectorStore = (*QdrantStore)(nil)

var qdrantWait = true

func NewQdrantStore(url, collection string, dimensions int) (*QdrantStore, error) {
	if collection == "" {
		collection = "ragserve"
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: qdrant dimensions must be positive", domain.ErrConfig)
	}

	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "https://")

	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("%w: connect to qdrant: %v", domain.ErrVectorDB, err)
	}

	s := &QdrantStore{
		points:     pb.NewPointsClient(conn),
		conn:       conn,
		collection: collection,
		dimensions: uint64(dimensions),
	}

	ctx, cancel := context.WithTimeout(context.Background(), qdrantTimeout)
	defer cancel()
	if err := s.ensureCollection(ctx, pb.NewCollectionsClient(conn)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, client pb.CollectionsClient) error {
	listResp, err := client.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", domain.ErrVectorDB, err)
	}

	for _, col := range listResp.Collections {
		if col.Name == s.collection {
			return nil
		}
	}

	_, err = client.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.dimensions,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrVectorDB, err)
	}
	log.Info("created qdrant collection", "collection", s.collection, "dimensions", s.dimensions)
	return nil
}

func (s *QdrantStore) Insert(ctx context.Context, chunk domain.Chunk) error {
	return s.InsertBatch(ctx, []domain.Chunk{chunk})
}

func (s *QdrantStore) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		if uint64(len(chunk.Vector)) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has dimension %d, want %d",
				domain.ErrVectorDB, chunk.ID, len(chunk.Vector), s.dimensions)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointUUID(chunk.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: chunk.Vector},
				},
			},
			Payload: chunkPayload(chunk),
		})
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           &qdrantWait,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert points: %v", domain.ErrVectorDB, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int, filter []string) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", domain.ErrInvalidInput)
	}
	if uint64(len(vector)) != s.dimensions {
		return nil, fmt.Errorf("%w: query has dimension %d, want %d",
			domain.ErrVectorDB, len(vector), s.dimensions)
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Filter:         docFilter(filter),
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrVectorDB, err)
	}

	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk:      chunkFromPayload(point.Payload),
			Similarity: float64(point.Score),
		})
	}
	sortResults(results)
	return results, nil
}

func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	filter := docFilter([]string{documentID})

	exact := true
	countResp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count points: %v", domain.ErrVectorDB, err)
	}
	count := int(countResp.Result.Count)
	if count == 0 {
		return 0, nil
	}

	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
		Wait: &qdrantWait,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: delete points: %v", domain.ErrVectorDB, err)
	}
	return count, nil
}

func (s *QdrantStore) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), qdrantTimeout)
	defer cancel()

	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Exact:          &exact,
	})
	if err != nil {
		log.Warn("qdrant count failed", "error", err)
		return 0
	}
	return int(resp.Result.Count)
}

func (s *QdrantStore) Health(ctx context.Context) error {
	_, err := pb.NewCollectionsClient(s.conn).Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant unreachable: %v", domain.ErrVectorDB, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// pointUUID derives a stable UUID from a chunk ID; Qdrant point IDs must
// be UUIDs or unsigned integers.
func pointUUID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func chunkPayload(chunk domain.Chunk) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"chunk_id":    strValue(chunk.ID),
		"doc_id":      strValue(chunk.DocumentID),
		"content":     strValue(chunk.Content),
		"filename":    strValue(chunk.Filename),
		"chunk_index": intValue(chunk.Index),
		"source_kind": strValue(string(chunk.Source.Kind)),
	}
	switch chunk.Source.Kind {
	case domain.SourcePage:
		payload["page"] = intValue(chunk.Source.Page)
	case domain.SourceLines:
		payload["line_start"] = intValue(chunk.Source.LineStart)
		payload["line_end"] = intValue(chunk.Source.LineEnd)
	case domain.SourceOffset:
		payload["offset"] = intValue(chunk.Source.Offset)
		payload["length"] = intValue(chunk.Source.Length)
	}
	return payload
}

func chunkFromPayload(payload map[string]*pb.Value) domain.Chunk {
	chunk := domain.Chunk{
		ID:         payload["chunk_id"].GetStringValue(),
		DocumentID: payload["doc_id"].GetStringValue(),
		Content:    payload["content"].GetStringValue(),
		Filename:   payload["filename"].GetStringValue(),
		Index:      int(payload["chunk_index"].GetIntegerValue()),
		Source: domain.ChunkSource{
			Kind: domain.SourceKind(payload["source_kind"].GetStringValue()),
		},
	}
	switch chunk.Source.Kind {
	case domain.SourcePage:
		chunk.Source.Page = int(payload["page"].GetIntegerValue())
	case domain.SourceLines:
		chunk.Source.LineStart = int(payload["line_start"].GetIntegerValue())
		chunk.Source.LineEnd = int(payload["line_end"].GetIntegerValue())
	case domain.SourceOffset:
		chunk.Source.Offset = int(payload["offset"].GetIntegerValue())
		chunk.Source.Length = int(payload["length"].GetIntegerValue())
	}
	return chunk
}

// docFilter builds an OR filter over document IDs; nil means unfiltered.
func docFilter(docIDs []string) *pb.Filter {
	if len(docIDs) == 0 {
		return nil
	}
	conditions := make([]*pb.Condition, 0, len(docIDs))
	for _, id := range docIDs {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "doc_id",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: id},
					},
				},
			},
		})
	}
	return &pb.Filter{Should: conditions}
}

func strValue(v string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
}

func intValue(v int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(v)}}
}
