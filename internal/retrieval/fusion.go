package retrieval

import (
	"moneymentor/internal/domain"
)

const (
	DefaultLexicalWeight = 0.4
	DefaultVectorWeight  = 0.6
	DefaultInitialK      = 20
	DefaultFinalK        = 5
)

// Weights scale each side's normalised rank score during fusion.
type Weights struct {
	Lexical float64
	Vector  float64
}

func DefaultWeights() Weights {
	return Weights{Lexical: DefaultLexicalWeight, Vector: DefaultVectorWeight}
}

// rankScores maps every chunk in an ordered list to (L - r + 1) / L where r
// is its 1-based position. Repeated chunks keep their best position.
func rankScores(list []domain.Candidate) map[domain.ChunkKey]float64 {
	scores := make(map[domain.ChunkKey]float64, len(list))
	l := float64(len(list))
	for i, c := range list {
		key := c.Chunk.Key()
		if _, seen := scores[key]; seen {
			continue
		}
		scores[key] = (l - float64(i)) / l
	}
	return scores
}

// Fuse merges two ordered candidate lists by weighted normalised rank. A
// chunk present in both lists appears once with both contributions summed; a
// chunk missing from one list gets 0 for that side. The result is sorted
// deterministically and truncated to limit (no truncation when limit <= 0).
func Fuse(lexical, vector []domain.Candidate, w Weights, limit int) []domain.Candidate {
	lex := rankScores(lexical)
	vec := rankScores(vector)

	chunks := make(map[domain.ChunkKey]domain.Chunk, len(lex)+len(vec))
	order := make([]domain.ChunkKey, 0, len(lex)+len(vec))
	for _, list := range [][]domain.Candidate{vector, lexical} {
		for _, c := range list {
			key := c.Chunk.Key()
			if _, ok := chunks[key]; ok {
				continue
			}
			chunks[key] = c.Chunk
			order = append(order, key)
		}
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, domain.Candidate{
			Chunk:  chunks[key],
			Score:  w.Lexical*lex[key] + w.Vector*vec[key],
			Origin: domain.OriginFused,
		})
	}
	domain.SortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
