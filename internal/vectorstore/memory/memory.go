package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"moneymentor/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	name      string
	dimension int
	entries   map[uint64]domain.Entry
}

func NewStorage(name string) *Storage {
	if name == "" {
		name = "memory"
	}
	return &Storage{name: name}
}

func (s *Storage) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("memory: invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries != nil {
		if s.dimension != dimension {
			return fmt.Errorf("%w: collection %q has %d dimensions, requested %d",
				domain.ErrDimensionMismatch, s.name, s.dimension, dimension)
		}
		return nil
	}
	s.dimension = dimension
	s.entries = make(map[uint64]domain.Entry)
	return nil
}

func (s *Storage) Upsert(_ context.Context, entries []domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		return fmt.Errorf("memory: collection %q does not exist", s.name)
	}
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: entry %d has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, e.ID, len(e.Vector), s.dimension)
		}
	}
	for _, e := range entries {
		v := make([]float32, len(e.Vector))
		copy(v, e.Vector)
		e.Vector = v
		s.entries[e.ID] = e
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, limit int, threshold *float64) ([]domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 5
	}
	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	results := make([]domain.Candidate, 0, len(s.entries))
	for _, e := range s.entries {
		score := cosine(e.Vector, vector)
		if threshold != nil && score < *threshold {
			continue
		}
		results = append(results, domain.Candidate{Chunk: e.Chunk, Score: score, Origin: domain.OriginVector})
	}
	domain.SortCandidates(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *Storage) Scroll(_ context.Context) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]domain.Chunk, len(ids))
	for i, id := range ids {
		out[i] = s.entries[id].Chunk
	}
	return out, nil
}

func (s *Storage) Info(_ context.Context) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := "green"
	if s.entries == nil {
		status = "missing"
	}
	return domain.CollectionInfo{
		Name:        s.name,
		VectorSize:  s.dimension,
		Distance:    "Cosine",
		PointsCount: len(s.entries),
		Status:      status,
	}, nil
}

func (s *Storage) DeleteCollection(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error { return nil }

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
