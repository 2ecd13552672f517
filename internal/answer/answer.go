// Package answer turns retrieved chunks into a reply.
package answer

import (
	"context"
	"fmt"
	"strings"

	"moneymentor/internal/domain"
)

// NoInformation is returned when retrieval found nothing to ground an answer on.
const NoInformation = "I apologize, but I couldn't find relevant information in my knowledge base to answer " +
	"your question. Please ensure the knowledge base has been loaded, or try rephrasing your question."

// Generator writes an answer for question grounded on the given chunks.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question string, candidates []domain.Candidate) (string, error)
}

// BuildContext renders candidates as numbered source blocks.
func BuildContext(candidates []domain.Candidate) string {
	blocks := make([]string, len(candidates))
	for i, c := range candidates {
		blocks[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, c.Chunk.SourceID, c.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n---\n\n")
}
