package retriever

import (
	"context"
	"sync"

	"github.com/nugget/memoraid/internal/embeddings"
)

// InProcessIndex is the default VectorIndex: an in-memory map scored by
// brute-force cosine similarity. Fine at the toy-assistant scale this
// service targets; Qdrant (qdrant.go) exists for when it isn't.
type InProcessIndex struct {
	mu      sync.RWMutex
	vectors map[string]entry
}

type entry struct {
	userID    string
	embedding []float32
}

func NewInProcessIndex() *InProcessIndex {
	return &InProcessIndex{vectors: make(map[string]entry)}
}

func (idx *InProcessIndex) Upsert(ctx context.Context, userID, id string, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.vectors[id] = entry{userID: userID, embedding: embedding}
	return nil
}

func (idx *InProcessIndex) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, id)
	return nil
}

func (idx *InProcessIndex) Query(ctx context.Context, userID string, embedding []float32, n int) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var ids []string
	var vectors [][]float32
	for id, e := range idx.vectors {
		if e.userID != userID {
			continue
		}
		ids = append(ids, id)
		vectors = append(vectors, e.embedding)
	}
	if n <= 0 || n > len(vectors) {
		n = len(vectors)
	}

	out := make([]string, 0, n)
	for _, i := range embeddings.TopK(embedding, vectors, n) {
		out = append(out, ids[i])
	}
	return out, nil
}
