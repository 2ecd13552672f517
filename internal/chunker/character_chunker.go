package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"moneymentor/internal/domain"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	DefaultSeparator    = "\n"
)

// CharacterChunker splits text into windows of at most size characters.
// Consecutive chunks share exactly overlap characters. A window ends right
// after the last separator it contains, or at the size limit when there is none.
//
// Size and overlap count runes, not bytes, so a chunk of multibyte text may
// have a ByteLength above size. Its rune count never exceeds size.
type CharacterChunker struct {
	size      int
	overlap   int
	separator []rune
}

func NewCharacterChunker(size, overlap int, separator string) (*CharacterChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be greater than zero", domain.ErrConfiguration)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must be non-negative", domain.ErrConfiguration)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrConfiguration, overlap, size)
	}
	return &CharacterChunker{size: size, overlap: overlap, separator: []rune(separator)}, nil
}

func (c *CharacterChunker) Size() int    { return c.size }
func (c *CharacterChunker) Overlap() int { return c.overlap }

func (c *CharacterChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	if !utf8.ValidString(document.Content) {
		return nil, fmt.Errorf("chunker: document %q is not valid UTF-8", document.ID)
	}
	source := document.Source
	if source == "" {
		source = document.ID
	}
	text := []rune(document.Content)
	var chunks []domain.Chunk
	start := 0
	for idx := 0; ; idx++ {
		end := start + c.size
		if end >= len(text) {
			chunks = append(chunks, newChunk(source, idx, text[start:]))
			break
		}
		cut := c.lastSeparatorEnd(text, start+c.overlap+1, end)
		if cut < 0 {
			cut = end
		}
		chunks = append(chunks, newChunk(source, idx, text[start:cut]))
		start = cut - c.overlap
	}
	return chunks, nil
}

// lastSeparatorEnd returns the largest position p in [lo, hi] such that the
// separator ends exactly at p, or -1.
func (c *CharacterChunker) lastSeparatorEnd(text []rune, lo, hi int) int {
	n := len(c.separator)
	if n == 0 {
		return -1
	}
	for p := hi; p >= lo && p-n >= 0; p-- {
		if runesEqual(text[p-n:p], c.separator) {
			return p
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newChunk(source string, idx int, text []rune) domain.Chunk {
	s := string(text)
	return domain.Chunk{
		SourceID:      source,
		SequenceIndex: idx,
		Text:          s,
		ByteLength:    len(s),
	}
}

// Reconstruct joins chunks produced with the given overlap back into the
// original text.
func Reconstruct(chunks []domain.Chunk, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		if i == 0 {
			b.WriteString(ch.Text)
			continue
		}
		r := []rune(ch.Text)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}
