package retriever

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/nugget/memoraid/internal/config"
)

// userIDField is the payload key used to scope Qdrant points to a user,
// since a single collection holds every user's episode vectors.
const userIDField = "user_id"

// QdrantIndex is the optional external VectorIndex backend, selected by
// Config.VectorBackend == "qdrant". Qdrant only accepts UUID or integer
// point IDs, so non-UUID episode/fact IDs are remapped the same way
// manifold's qdrant store does: a deterministic UUIDv5 derived from the
// original ID, with the original stored in the point payload.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantIndex(cfg config.QdrantConfig, dimension int) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Address,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	idx := &QdrantIndex{client: client, collection: cfg.Collection}
	ctx := context.Background()
	if err := idx.ensureCollection(ctx, dimension); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("qdrant: dimension must be > 0 to create collection %q", q.collection)
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantIndex) Upsert(ctx context.Context, userID, id string, embedding []float32) error {
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	payload := qdrant.NewValueMap(map[string]any{
		userIDField:    userID,
		"_original_id": id,
	})
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointUUID(id)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(pointUUID(id))),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, userID string, embedding []float32, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	limit := uint64(n)

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(userIDField, userID)}},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, hit := range results {
		id := hit.Id.GetUuid()
		if hit.Payload != nil {
			if v, ok := hit.Payload["_original_id"]; ok {
				id = v.GetStringValue()
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
