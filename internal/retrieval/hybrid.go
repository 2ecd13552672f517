package retrieval

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
)

// LexicalSearcher is satisfied by *lexical.Index.
type LexicalSearcher interface {
	Query(text string, limit int) []domain.Candidate
}

// Hybrid queries both indexes concurrently and fuses their pools.
type Hybrid struct {
	lexical  LexicalSearcher
	vector   *VectorRetriever
	weights  Weights
	poolSize int
}

func NewHybrid(lex LexicalSearcher, vec *VectorRetriever, w Weights, poolSize int) *Hybrid {
	if poolSize <= 0 {
		poolSize = DefaultInitialK
	}
	return &Hybrid{lexical: lex, vector: vec, weights: w, poolSize: poolSize}
}

var errNoLexicalIndex = errors.New("lexical index not built")

// Search returns up to poolSize fused candidates. When exactly one side fails
// the other side is fused alone and the failure is reported as a diagnostic.
func (h *Hybrid) Search(ctx context.Context, query string) ([]domain.Candidate, string, error) {
	var (
		lexRes, vecRes []domain.Candidate
		lexErr, vecErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if h.lexical == nil {
			lexErr = errNoLexicalIndex
			return nil
		}
		lexRes = h.lexical.Query(query, h.poolSize)
		return nil
	})
	g.Go(func() error {
		vecRes, vecErr = h.vector.Search(gctx, query, h.poolSize)
		return nil
	})
	_ = g.Wait()

	log := logger.FromContext(ctx)
	var diagnostic string
	switch {
	case lexErr != nil && vecErr != nil:
		return nil, "", fmt.Errorf("retrieval: hybrid: lexical: %v; vector: %w", lexErr, vecErr)
	case vecErr != nil:
		log.Warn("Vector side failed, using lexical results only", "error", vecErr)
		diagnostic = "vector search failed: " + vecErr.Error()
	case lexErr != nil:
		log.Warn("Lexical side failed, using vector results only", "error", lexErr)
		diagnostic = "lexical search failed: " + lexErr.Error()
	}
	log.Debug("Hybrid pools collected", "lexical", len(lexRes), "vector", len(vecRes))
	return Fuse(lexRes, vecRes, h.weights, h.poolSize), diagnostic, nil
}
