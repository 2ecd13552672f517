// Package rerank reorders a fused candidate pool with an external relevance
// scorer and falls back to the incoming order whenever the scorer fails.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slok/goresilience"
	"github.com/slok/goresilience/circuitbreaker"
	rerrors "github.com/slok/goresilience/errors"
	"github.com/slok/goresilience/timeout"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
)

// Score is the relevance of documents[Index] as reported by a Scorer.
type Score struct {
	Index     int
	Relevance float64
}

// Scorer is the external cross-encoder. Scores come back in descending
// relevance order.
type Scorer interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]Score, error)
}

const (
	ReasonDisabled  = "disabled"
	ReasonTimeout   = "timeout"
	ReasonOpen      = "circuit_open"
	ReasonError     = "error"
	ReasonMalformed = "malformed_response"
)

type Config struct {
	Timeout                     time.Duration
	ErrorPercentThresholdToOpen int
	MinimumRequestToOpen        int
	WaitDurationInOpenState     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:                     10 * time.Second,
		ErrorPercentThresholdToOpen: 50,
		MinimumRequestToOpen:        5,
		WaitDurationInOpenState:     30 * time.Second,
	}
}

// Reranker calls the scorer at most once per request. A failed call degrades
// to the pre-rerank order.
type Reranker struct {
	scorer  Scorer
	runner  goresilience.Runner
	metrics *metrics.Metrics
}

func New(scorer Scorer, cfg Config, m *metrics.Metrics) *Reranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	runner := goresilience.RunnerChain(
		timeout.NewMiddleware(timeout.Config{Timeout: cfg.Timeout}),
		circuitbreaker.NewMiddleware(circuitbreaker.Config{
			ErrorPercentThresholdToOpen:        cfg.ErrorPercentThresholdToOpen,
			MinimumRequestToOpen:               cfg.MinimumRequestToOpen,
			SuccessfulRequiredOnHalfOpen:       1,
			WaitDurationInOpenState:            cfg.WaitDurationInOpenState,
			MetricsSlidingWindowBucketQuantity: 10,
			MetricsBucketDuration:              time.Second,
		}),
	)
	return &Reranker{scorer: scorer, runner: runner, metrics: m}
}

// Rerank returns the top k candidates by scorer relevance with origin
// reranked. On any failure it returns the first k candidates unchanged,
// true, and the fallback reason.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, k int) ([]domain.Candidate, bool, string) {
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	if len(candidates) == 0 {
		return nil, false, ""
	}
	if r == nil || r.scorer == nil {
		return r.fallback(ctx, candidates, k, ReasonDisabled, nil)
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Text
	}
	var scores []Score
	err := r.runner.Run(ctx, func(ctx context.Context) (runErr error) {
		defer func() {
			if p := recover(); p != nil {
				runErr = fmt.Errorf("panic recovered: %v", p)
			}
		}()
		scores, runErr = r.scorer.Rerank(ctx, query, docs, k)
		return runErr
	})
	if err != nil {
		return r.fallback(ctx, candidates, k, classify(err), err)
	}
	out, err := apply(candidates, scores, k)
	if err != nil {
		return r.fallback(ctx, candidates, k, ReasonMalformed, err)
	}
	return out, false, ""
}

func (r *Reranker) fallback(ctx context.Context, candidates []domain.Candidate, k int, reason string, err error) ([]domain.Candidate, bool, string) {
	if reason != ReasonDisabled {
		logger.FromContext(ctx).Warn("Reranking failed, falling back to fused order", "reason", reason, "error", err)
	}
	if r != nil {
		r.metrics.RerankFallback(reason)
	}
	out := make([]domain.Candidate, k)
	copy(out, candidates[:k])
	return out, true, reason
}

func classify(err error) string {
	switch {
	case errors.Is(err, rerrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, rerrors.ErrCircuitOpen):
		return ReasonOpen
	default:
		return ReasonError
	}
}

// apply maps scorer results back onto candidates. Duplicate or out of range
// indexes make the whole response unusable.
func apply(candidates []domain.Candidate, scores []Score, k int) ([]domain.Candidate, error) {
	if len(scores) == 0 {
		return nil, errors.New("rerank: empty response")
	}
	seen := make(map[int]struct{}, len(scores))
	out := make([]domain.Candidate, 0, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank: index %d out of range", s.Index)
		}
		if _, dup := seen[s.Index]; dup {
			return nil, fmt.Errorf("rerank: duplicate index %d", s.Index)
		}
		seen[s.Index] = struct{}{}
		c := candidates[s.Index]
		c.Score = s.Relevance
		c.Origin = domain.OriginReranked
		out = append(out, c)
	}
	domain.SortCandidates(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
