package vectorstore

import (
	"context"

	"moneymentor/internal/domain"
)

// Payload field names of a persisted entry. Reload and rebuild jobs depend on them.
const (
	PayloadText    = "text"
	PayloadSource  = "source"
	PayloadChunkID = "chunk_id"
)

// Storage persists chunk embeddings and supports cosine similarity search.
//
// EnsureCollection is idempotent. Upsert replaces entries by id and either
// stores the whole batch or none of it. Search drops candidates scoring below
// threshold when threshold is non-nil. Scroll returns every persisted chunk
// in id order.
type Storage interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, entries []domain.Entry) error
	Search(ctx context.Context, vector []float32, limit int, threshold *float64) ([]domain.Candidate, error)
	Scroll(ctx context.Context) ([]domain.Chunk, error)
	Info(ctx context.Context) (domain.CollectionInfo, error)
	DeleteCollection(ctx context.Context) error
	Close() error
}
