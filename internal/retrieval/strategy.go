package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
)

// Outcome is what a strategy produced for one query.
type Outcome struct {
	Candidates []domain.Candidate
	Reranked   bool
	Fallback   bool
	Diagnostic string
}

// Strategy is one retrieval path. Exactly two exist: Fast and Quality.
type Strategy interface {
	Mode() domain.Mode
	Retrieve(ctx context.Context, query string, k int) (Outcome, error)
}

// Reranker reorders a candidate pool and never fails; it reports whether it
// fell back to the incoming order and why.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, k int) ([]domain.Candidate, bool, string)
}

// Fast searches the vector index only.
type Fast struct {
	vector *VectorRetriever
}

func NewFast(v *VectorRetriever) *Fast { return &Fast{vector: v} }

func (f *Fast) Mode() domain.Mode { return domain.ModeFast }

func (f *Fast) Retrieve(ctx context.Context, query string, k int) (Outcome, error) {
	res, err := f.vector.Search(ctx, query, k)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Candidates: res}, nil
}

// Quality fuses lexical and vector pools, then reranks the fused pool.
type Quality struct {
	hybrid   *Hybrid
	reranker Reranker
}

func NewQuality(h *Hybrid, r Reranker) *Quality { return &Quality{hybrid: h, reranker: r} }

func (q *Quality) Mode() domain.Mode { return domain.ModeQuality }

func (q *Quality) Retrieve(ctx context.Context, query string, k int) (Outcome, error) {
	pool, diagnostic, err := q.hybrid.Search(ctx, query)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Diagnostic: diagnostic}
	if len(pool) == 0 {
		return out, nil
	}
	if q.reranker == nil {
		out.Candidates = truncate(pool, k)
		return out, nil
	}
	ranked, fallback, reason := q.reranker.Rerank(ctx, query, pool, k)
	out.Candidates = ranked
	out.Reranked = !fallback
	out.Fallback = fallback
	if fallback {
		out.Diagnostic = joinDiagnostics(out.Diagnostic, "rerank fallback: "+reason)
	}
	return out, nil
}

// Retriever routes each request to the strategy named by the caller.
type Retriever struct {
	strategies map[domain.Mode]Strategy
	defaultK   int
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type RetrieverOption func(*Retriever)

func WithMetrics(m *metrics.Metrics) RetrieverOption {
	return func(r *Retriever) { r.metrics = m }
}

func WithDefaultK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

func NewRetriever(fast, quality Strategy, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		strategies: make(map[domain.Mode]Strategy, 2),
		defaultK:   DefaultFinalK,
		tracer:     otel.Tracer("moneymentor.retrieval"),
	}
	for _, s := range []Strategy{fast, quality} {
		if s != nil {
			r.strategies[s.Mode()] = s
		}
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Retrieve returns at most k candidates for query. Collaborator failures are
// turned into an empty result with a diagnostic; only an empty query or an
// unsupported mode is an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, mode domain.Mode, k int) (domain.Retrieval, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Retrieval{}, domain.ErrEmptyQuery
	}
	strategy, ok := r.strategies[mode]
	if !ok {
		return domain.Retrieval{}, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	if k <= 0 {
		k = r.defaultK
	}
	log := logger.FromContext(ctx).With("mode", string(mode), "k", k)
	ctx, span := r.tracer.Start(ctx, "moneymentor.retrieval.retrieve", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("k", k),
	))
	defer span.End()

	start := time.Now()
	log.Debug("Retrieval started", "query_length", len(query))
	out, err := strategy.Retrieve(ctx, query, k)
	result := domain.Retrieval{Query: query, Mode: mode}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("Retrieval failed, returning empty result", "error", err)
		result.Diagnostic = err.Error()
	} else {
		result.Candidates = truncate(out.Candidates, k)
		result.Reranked = out.Reranked
		result.Fallback = out.Fallback
		result.Diagnostic = out.Diagnostic
	}
	result.Elapsed = time.Since(start)
	span.SetAttributes(
		attribute.Int("results", len(result.Candidates)),
		attribute.Bool("rerank_fallback", result.Fallback),
	)
	r.metrics.ObserveRetrieval(string(mode), result.Elapsed, len(result.Candidates), result.Diagnostic != "")
	log.Info("Retrieval finished",
		"results", len(result.Candidates),
		"reranked", result.Reranked,
		"fallback", result.Fallback,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// Modes lists the configured strategies.
func (r *Retriever) Modes() []domain.Mode {
	var modes []domain.Mode
	for _, m := range []domain.Mode{domain.ModeFast, domain.ModeQuality} {
		if _, ok := r.strategies[m]; ok {
			modes = append(modes, m)
		}
	}
	return modes
}

func truncate(cands []domain.Candidate, k int) []domain.Candidate {
	if k > 0 && len(cands) > k {
		return cands[:k]
	}
	return cands
}

func joinDiagnostics(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
