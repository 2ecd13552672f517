package domain

import "context"

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// DocumentLoader yields normalized documents from a corpus location.
type DocumentLoader interface {
	Load(ctx context.Context, dir string) ([]Document, error)
}
