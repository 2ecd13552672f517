// Package lexical implements an in-memory Okapi BM25 index over chunks.
package lexical

import (
	"math"

	"moneymentor/internal/domain"
	"moneymentor/internal/tokenize"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

type posting struct {
	doc int
	tf  int
}

// Index is immutable once built and safe for concurrent queries.
type Index struct {
	k1, b    float64
	chunks   []domain.Chunk
	lengths  []int
	avgLen   float64
	postings map[string][]posting
}

type Option func(*Index)

func WithK1(k1 float64) Option { return func(ix *Index) { ix.k1 = k1 } }

func WithB(b float64) Option { return func(ix *Index) { ix.b = b } }

// Build indexes chunks. Chunks with no indexable terms still count towards
// the corpus size but can never match.
func Build(chunks []domain.Chunk, opts ...Option) *Index {
	ix := &Index{
		k1:       DefaultK1,
		b:        DefaultB,
		chunks:   append([]domain.Chunk(nil), chunks...),
		lengths:  make([]int, len(chunks)),
		postings: make(map[string][]posting),
	}
	for _, o := range opts {
		o(ix)
	}
	total := 0
	for i, c := range ix.chunks {
		terms := tokenize.Terms(c.Text)
		ix.lengths[i] = len(terms)
		total += len(terms)
		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t, n := range tf {
			ix.postings[t] = append(ix.postings[t], posting{doc: i, tf: n})
		}
	}
	if len(ix.chunks) > 0 {
		ix.avgLen = float64(total) / float64(len(ix.chunks))
	}
	return ix
}

func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns the indexed corpus in build order.
func (ix *Index) Chunks() []domain.Chunk {
	return append([]domain.Chunk(nil), ix.chunks...)
}

// Query scores every chunk sharing at least one term with text and returns
// at most limit candidates. No overlapping term means an empty result.
func (ix *Index) Query(text string, limit int) []domain.Candidate {
	if ix == nil || limit <= 0 || len(ix.chunks) == 0 {
		return nil
	}
	n := float64(len(ix.chunks))
	scores := make(map[int]float64)
	for term := range tokenize.TermSet(text) {
		plist, ok := ix.postings[term]
		if !ok {
			continue
		}
		df := float64(len(plist))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1 - ix.b
			if ix.avgLen > 0 {
				norm += ix.b * float64(ix.lengths[p.doc]) / ix.avgLen
			}
			scores[p.doc] += idf * tf * (ix.k1 + 1) / (tf + ix.k1*norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	out := make([]domain.Candidate, 0, len(scores))
	for doc, s := range scores {
		out = append(out, domain.Candidate{Chunk: ix.chunks[doc], Score: s, Origin: domain.OriginLexical})
	}
	domain.SortCandidates(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
