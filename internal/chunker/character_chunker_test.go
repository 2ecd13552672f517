package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymentor/internal/domain"
)

func texts(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestNewCharacterChunker(t *testing.T) {
	t.Run("Should reject overlap not smaller than size", func(t *testing.T) {
		_, err := NewCharacterChunker(10, 10, "\n")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfiguration))
	})

	t.Run("Should reject non-positive size and negative overlap", func(t *testing.T) {
		_, err := NewCharacterChunker(0, 0, "\n")
		assert.Error(t, err)
		_, err = NewCharacterChunker(10, -1, "\n")
		assert.Error(t, err)
	})
}

func TestCharacterChunker_Chunk(t *testing.T) {
	t.Run("Should split after the last separator inside the window", func(t *testing.T) {
		c, err := NewCharacterChunker(10, 3, "\n")
		require.NoError(t, err)

		chunks, err := c.Chunk(domain.Document{ID: "d", Source: "notes.txt", Content: "aaaa\nbbbb\ncccc\ndddd"})

		require.NoError(t, err)
		assert.Equal(t, []string{"aaaa\nbbbb\n", "bb\ncccc\n", "cc\ndddd"}, texts(chunks))
		for i, ch := range chunks {
			assert.Equal(t, "notes.txt", ch.SourceID)
			assert.Equal(t, i, ch.SequenceIndex)
			assert.Equal(t, len(ch.Text), ch.ByteLength)
		}
	})

	t.Run("Should force split when no separator occurs", func(t *testing.T) {
		c, err := NewCharacterChunker(10, 2, "\n")
		require.NoError(t, err)

		chunks, err := c.Chunk(domain.Document{ID: "d", Content: "abcdefghijklmnopqrstuvwxyz"})

		require.NoError(t, err)
		assert.Equal(t, []string{"abcdefghij", "ijklmnopqr", "qrstuvwxyz"}, texts(chunks))
		assert.Equal(t, "d", chunks[0].SourceID)
	})

	t.Run("Should return zero chunks for empty or whitespace input", func(t *testing.T) {
		c, err := NewCharacterChunker(10, 2, "\n")
		require.NoError(t, err)
		for _, content := range []string{"", "   ", "\n\n\t"} {
			chunks, err := c.Chunk(domain.Document{ID: "d", Content: content})
			require.NoError(t, err)
			assert.Empty(t, chunks)
		}
	})

	t.Run("Should emit a single chunk when text fits", func(t *testing.T) {
		c, err := NewCharacterChunker(800, 100, "\n")
		require.NoError(t, err)
		chunks, err := c.Chunk(domain.Document{ID: "d", Content: "What is compound interest?"})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "What is compound interest?", chunks[0].Text)
	})

	t.Run("Should count characters rather than bytes", func(t *testing.T) {
		c, err := NewCharacterChunker(4, 1, "")
		require.NoError(t, err)
		chunks, err := c.Chunk(domain.Document{ID: "d", Content: "€€€€€€€"})
		require.NoError(t, err)
		assert.Equal(t, []string{"€€€€", "€€€€"}, texts(chunks))
		for _, ch := range chunks {
			assert.Equal(t, len(ch.Text), ch.ByteLength)
			assert.Equal(t, 12, ch.ByteLength)
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), c.Size())
		}
	})
}

func TestCharacterChunker_Properties(t *testing.T) {
	corpus := strings.Repeat("Compound interest grows savings over time.\nDiversify across index funds", 12) +
		strings.Repeat("x", 250) + "\nshort tail\n"

	params := []struct{ size, overlap int }{
		{800, 100}, {120, 20}, {50, 0}, {64, 63}, {7, 3},
	}

	for _, p := range params {
		c, err := NewCharacterChunker(p.size, p.overlap, "\n")
		require.NoError(t, err)
		doc := domain.Document{ID: "guide", Source: "guide.txt", Content: corpus}

		t.Run("Should be deterministic", func(t *testing.T) {
			first, err := c.Chunk(doc)
			require.NoError(t, err)
			second, err := c.Chunk(doc)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})

		t.Run("Should reconstruct the original text", func(t *testing.T) {
			chunks, err := c.Chunk(doc)
			require.NoError(t, err)
			assert.Equal(t, corpus, Reconstruct(chunks, p.overlap))
		})

		t.Run("Should overlap adjacent chunks by exactly the overlap", func(t *testing.T) {
			chunks, err := c.Chunk(doc)
			require.NoError(t, err)
			for i := 0; i+1 < len(chunks); i++ {
				cur, next := []rune(chunks[i].Text), []rune(chunks[i+1].Text)
				require.GreaterOrEqual(t, len(next), p.overlap)
				assert.Equal(t, string(cur[len(cur)-p.overlap:]), string(next[:p.overlap]))
			}
		})

		t.Run("Should keep every chunk within the size limit", func(t *testing.T) {
			chunks, err := c.Chunk(doc)
			require.NoError(t, err)
			for _, ch := range chunks {
				assert.LessOrEqual(t, ch.ByteLength, p.size)
			}
		})
	}
}
