package retrieval

import (
	"context"
	"fmt"

	"moneymentor/internal/domain"
	"moneymentor/internal/embedding"
	"moneymentor/internal/vectorstore"
)

// VectorRetriever embeds the query and searches the vector index.
type VectorRetriever struct {
	embedder  embedding.Embedder
	store     vectorstore.Storage
	threshold *float64
}

func NewVectorRetriever(e embedding.Embedder, s vectorstore.Storage, threshold *float64) *VectorRetriever {
	return &VectorRetriever{embedder: e, store: s, threshold: threshold}
}

func (v *VectorRetriever) Search(ctx context.Context, query string, limit int) ([]domain.Candidate, error) {
	vec, err := v.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	// A query without a single known feature cannot be compared by cosine.
	if isZero(vec) {
		return nil, nil
	}
	res, err := v.store.Search(ctx, vec, limit, v.threshold)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}
	return res, nil
}

func isZero(vec []float32) bool {
	for _, x := range vec {
		if x != 0 {
			return false
		}
	}
	return true
}
