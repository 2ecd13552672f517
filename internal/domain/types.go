package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document is one source file after text extraction.
type Document struct {
	ID      string
	Path    string
	Source  string
	Content string
}

// Chunk is a contiguous span of a document and the unit of retrieval.
type Chunk struct {
	SourceID      string
	SequenceIndex int
	Text          string
	ByteLength    int
}

// ChunkKey identifies a chunk across indexes.
type ChunkKey struct {
	SourceID      string
	SequenceIndex int
}

func (c Chunk) Key() ChunkKey {
	return ChunkKey{SourceID: c.SourceID, SequenceIndex: c.SequenceIndex}
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s#%d", k.SourceID, k.SequenceIndex)
}

// Entry is the persisted unit of the vector index.
type Entry struct {
	ID     uint64
	Vector []float32
	Chunk  Chunk
}

type ScoreOrigin string

const (
	OriginLexical  ScoreOrigin = "lexical"
	OriginVector   ScoreOrigin = "vector"
	OriginFused    ScoreOrigin = "fused"
	OriginReranked ScoreOrigin = "reranked"
)

// Candidate is a transient, per-query scored reference to a chunk.
type Candidate struct {
	Chunk  Chunk
	Score  float64
	Rank   int
	Origin ScoreOrigin
}

// SortCandidates orders by score descending, then sequence index ascending,
// then source id ascending, and rewrites ranks starting at 1.
func SortCandidates(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.SequenceIndex != b.Chunk.SequenceIndex {
			return a.Chunk.SequenceIndex < b.Chunk.SequenceIndex
		}
		return a.Chunk.SourceID < b.Chunk.SourceID
	})
	for i := range cands {
		cands[i].Rank = i + 1
	}
}

type Mode string

const (
	ModeFast    Mode = "fast"
	ModeQuality Mode = "quality"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFast:
		return ModeFast, nil
	case ModeQuality:
		return ModeQuality, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Retrieval is the outcome of one retrieve call together with its diagnostics.
type Retrieval struct {
	Query      string
	Mode       Mode
	Candidates []Candidate
	Reranked   bool
	Fallback   bool
	Diagnostic string
	Elapsed    time.Duration
}

// IndexResult reports the progress of an indexing run, including partial
// progress when a batch fails.
type IndexResult struct {
	DocumentsProcessed int    `json:"documents_processed"`
	ChunksCreated      int    `json:"chunks_created"`
	VectorsIndexed     int    `json:"vectors_indexed"`
	Success            bool   `json:"success"`
	Error              string `json:"error,omitempty"`
	Collection         string `json:"collection,omitempty"`
}

type CollectionInfo struct {
	Name        string `json:"name"`
	VectorSize  int    `json:"vector_size"`
	Distance    string `json:"distance"`
	PointsCount int    `json:"points_count"`
	Status      string `json:"status"`
}
