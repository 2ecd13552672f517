package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortCandidates(t *testing.T) {
	t.Run("Should order by score then sequence index then source id", func(t *testing.T) {
		cands := []Candidate{
			{Chunk: Chunk{SourceID: "b.txt", SequenceIndex: 1}, Score: 0.5},
			{Chunk: Chunk{SourceID: "a.txt", SequenceIndex: 1}, Score: 0.5},
			{Chunk: Chunk{SourceID: "z.txt", SequenceIndex: 0}, Score: 0.5},
			{Chunk: Chunk{SourceID: "c.txt", SequenceIndex: 9}, Score: 0.9},
		}

		SortCandidates(cands)

		keys := make([]string, len(cands))
		for i, c := range cands {
			keys[i] = c.Chunk.Key().String()
			assert.Equal(t, i+1, c.Rank)
		}
		assert.Equal(t, []string{"c.txt#9", "z.txt#0", "a.txt#1", "b.txt#1"}, keys)
	})
}

func TestParseMode(t *testing.T) {
	t.Run("Should accept both supported modes case-insensitively", func(t *testing.T) {
		m, err := ParseMode("FAST")
		require.NoError(t, err)
		assert.Equal(t, ModeFast, m)
		m, err = ParseMode(" quality ")
		require.NoError(t, err)
		assert.Equal(t, ModeQuality, m)
	})

	t.Run("Should reject the retired multi-query strategy", func(t *testing.T) {
		_, err := ParseMode("advanced")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownMode))
	})
}
