package embedding

import "context"

// Embedder converts text into fixed-length vectors. EmbedDocuments preserves
// input order.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
