package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymentor/internal/domain"
)

func cand(source string, seq int, origin domain.ScoreOrigin) domain.Candidate {
	return domain.Candidate{
		Chunk:  domain.Chunk{SourceID: source, SequenceIndex: seq, Text: source},
		Origin: origin,
	}
}

func keys(cands []domain.Candidate) []domain.ChunkKey {
	out := make([]domain.ChunkKey, len(cands))
	for i, c := range cands {
		out[i] = c.Chunk.Key()
	}
	return out
}

func TestFuse(t *testing.T) {
	a := cand("a.txt", 0, domain.OriginLexical)
	b := cand("b.txt", 0, domain.OriginLexical)
	c := cand("c.txt", 0, domain.OriginVector)

	t.Run("Should combine a chunk found by both sides into one candidate", func(t *testing.T) {
		lexical := []domain.Candidate{a, b}
		vector := []domain.Candidate{b, c}

		fused := Fuse(lexical, vector, DefaultWeights(), 20)

		require.Len(t, fused, 3)
		assert.Equal(t, []domain.ChunkKey{b.Chunk.Key(), a.Chunk.Key(), c.Chunk.Key()}, keys(fused))
		assert.InDelta(t, 0.4*0.5+0.6*1.0, fused[0].Score, 1e-9)
		assert.InDelta(t, 0.4, fused[1].Score, 1e-9)
		assert.InDelta(t, 0.3, fused[2].Score, 1e-9)
		for i, f := range fused {
			assert.Equal(t, domain.OriginFused, f.Origin)
			assert.Equal(t, i+1, f.Rank)
		}
	})

	t.Run("Should produce identical output on repeated runs", func(t *testing.T) {
		lexical := []domain.Candidate{a, b, c}
		vector := []domain.Candidate{c, cand("d.txt", 3, domain.OriginVector), a}

		first := Fuse(lexical, vector, DefaultWeights(), 20)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Fuse(lexical, vector, DefaultWeights(), 20))
		}
	})

	t.Run("Should break ties by sequence index then source", func(t *testing.T) {
		x := cand("z.txt", 1, domain.OriginLexical)
		y := cand("y.txt", 0, domain.OriginVector)
		w := cand("x.txt", 1, domain.OriginVector)

		fused := Fuse([]domain.Candidate{x}, []domain.Candidate{y}, Weights{Lexical: 0.5, Vector: 0.5}, 0)
		assert.Equal(t, []domain.ChunkKey{y.Chunk.Key(), x.Chunk.Key()}, keys(fused))

		fused = Fuse([]domain.Candidate{x}, []domain.Candidate{w}, Weights{Lexical: 0.5, Vector: 0.5}, 0)
		assert.Equal(t, []domain.ChunkKey{w.Chunk.Key(), x.Chunk.Key()}, keys(fused))
	})

	t.Run("Should truncate to the limit", func(t *testing.T) {
		fused := Fuse([]domain.Candidate{a, b}, []domain.Candidate{c}, DefaultWeights(), 2)
		assert.Len(t, fused, 2)
	})

	t.Run("Should score a one-sided list by its own weight", func(t *testing.T) {
		fused := Fuse(nil, []domain.Candidate{c, a}, DefaultWeights(), 0)
		require.Len(t, fused, 2)
		assert.InDelta(t, 0.6, fused[0].Score, 1e-9)
		assert.InDelta(t, 0.3, fused[1].Score, 1e-9)
	})

	t.Run("Should ignore repeats inside one list", func(t *testing.T) {
		fused := Fuse([]domain.Candidate{a, a, b}, nil, DefaultWeights(), 0)
		require.Len(t, fused, 2)
		assert.InDelta(t, 0.4, fused[0].Score, 1e-9)
	})

	t.Run("Should return an empty list for empty inputs", func(t *testing.T) {
		assert.Empty(t, Fuse(nil, nil, DefaultWeights(), 20))
	})
}
