// Package indexer runs the offline path: load, chunk, embed, upsert.
package indexer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"moneymentor/internal/chunker"
	"moneymentor/internal/domain"
	"moneymentor/internal/embedding"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
	"moneymentor/internal/vectorstore"
)

const (
	DefaultEmbedBatchSize  = 20
	DefaultEmbedPause      = 500 * time.Millisecond
	DefaultUpsertBatchSize = 100
)

type Config struct {
	Collection      string
	EmbedBatchSize  int
	EmbedPause      time.Duration
	UpsertBatchSize int
}

func (c Config) withDefaults() Config {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.EmbedPause < 0 {
		c.EmbedPause = 0
	}
	if c.UpsertBatchSize <= 0 {
		c.UpsertBatchSize = DefaultUpsertBatchSize
	}
	return c
}

// Request describes one indexing run.
type Request struct {
	CorpusDir    string
	ChunkSize    int
	ChunkOverlap int
	// Separator defaults to a newline; zero ChunkSize uses the chunker default.
	Separator    string
	// Recreate drops the collection first so ids from a larger previous
	// corpus do not linger.
	Recreate     bool
}

// Indexer is not safe for concurrent runs against the same collection.
type Indexer struct {
	loader   domain.DocumentLoader
	embedder embedding.Embedder
	store    vectorstore.Storage
	cfg      Config
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func New(loader domain.DocumentLoader, e embedding.Embedder, s vectorstore.Storage, cfg Config, m *metrics.Metrics) *Indexer {
	return &Indexer{
		loader:   loader,
		embedder: e,
		store:    s,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		tracer:   otel.Tracer("moneymentor.indexer"),
	}
}

// Index never returns a Go error: failures are reported in the result
// together with the counts completed so far.
func (ix *Indexer) Index(ctx context.Context, req Request) (res domain.IndexResult) {
	log := logger.FromContext(ctx).With("corpus", req.CorpusDir, "collection", ix.cfg.Collection)
	ctx, span := ix.tracer.Start(ctx, "moneymentor.indexer.index", trace.WithAttributes(
		attribute.String("corpus", req.CorpusDir),
		attribute.Int("chunk_size", req.ChunkSize),
		attribute.Int("chunk_overlap", req.ChunkOverlap),
	))
	start := time.Now()
	res.Collection = ix.cfg.Collection
	defer func() {
		span.SetAttributes(
			attribute.Int("documents", res.DocumentsProcessed),
			attribute.Int("chunks", res.ChunksCreated),
			attribute.Int("vectors", res.VectorsIndexed),
		)
		if !res.Success {
			span.SetStatus(codes.Error, res.Error)
			log.Error("Indexing failed", "error", res.Error,
				"documents", res.DocumentsProcessed, "chunks", res.ChunksCreated, "vectors", res.VectorsIndexed)
		} else {
			log.Info("Indexing complete", "documents", res.DocumentsProcessed,
				"chunks", res.ChunksCreated, "vectors", res.VectorsIndexed, "elapsed", time.Since(start))
		}
		ix.metrics.ObserveIndex(res.VectorsIndexed, res.Success)
		span.End()
	}()
	fail := func(format string, args ...any) domain.IndexResult {
		res.Error = fmt.Sprintf(format, args...)
		return res
	}

	if req.ChunkSize == 0 {
		req.ChunkSize = chunker.DefaultChunkSize
	}
	if req.Separator == "" {
		req.Separator = chunker.DefaultSeparator
	}
	ck, err := chunker.NewCharacterChunker(req.ChunkSize, req.ChunkOverlap, req.Separator)
	if err != nil {
		return fail("%v", err)
	}
	if req.Recreate {
		if err := ix.store.DeleteCollection(ctx); err != nil {
			return fail("delete collection: %v", err)
		}
	}
	if err := ix.store.EnsureCollection(ctx, ix.embedder.Dimension()); err != nil {
		return fail("ensure collection: %v", err)
	}

	docs, err := ix.loader.Load(ctx, req.CorpusDir)
	if err != nil {
		return fail("load documents: %v", err)
	}
	if len(docs) == 0 {
		log.Warn("No documents found, nothing to index")
		res.Success = true
		return res
	}

	// Phase 1: chunk everything.
	var chunks []domain.Chunk
	for _, d := range docs {
		cs, err := ck.Chunk(d)
		if err != nil {
			return fail("chunk %s: %v", d.Source, err)
		}
		log.Debug("Document chunked", "source", d.Source, "chunks", len(cs))
		chunks = append(chunks, cs...)
		res.DocumentsProcessed++
	}
	res.ChunksCreated = len(chunks)
	if len(chunks) == 0 {
		res.Success = true
		return res
	}

	// Phase 2: embed in batches, paced for the provider's rate limits.
	entries, err := ix.embed(ctx, chunks)
	if err != nil {
		return fail("%v", err)
	}

	// Phase 3: upsert in batches; the first failure stops the run.
	total := batches(len(entries), ix.cfg.UpsertBatchSize)
	for b, lo := 0, 0; lo < len(entries); b, lo = b+1, lo+ix.cfg.UpsertBatchSize {
		hi := min(lo+ix.cfg.UpsertBatchSize, len(entries))
		if err := ix.store.Upsert(ctx, entries[lo:hi]); err != nil {
			return fail("upsert batch %d/%d: %v", b+1, total, err)
		}
		res.VectorsIndexed += hi - lo
		log.Debug("Upserted batch", "batch", b+1, "of", total, "vectors", res.VectorsIndexed)
	}
	res.Success = true
	return res
}

func (ix *Indexer) embed(ctx context.Context, chunks []domain.Chunk) ([]domain.Entry, error) {
	log := logger.FromContext(ctx)
	size := ix.cfg.EmbedBatchSize
	total := batches(len(chunks), size)
	var limiter *rate.Limiter
	if ix.cfg.EmbedPause > 0 {
		limiter = rate.NewLimiter(rate.Every(ix.cfg.EmbedPause), 1)
	}
	entries := make([]domain.Entry, 0, len(chunks))
	for b, lo := 0, 0; lo < len(chunks); b, lo = b+1, lo+size {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embed batch %d/%d: %w", b+1, total, err)
			}
		}
		hi := min(lo+size, len(chunks))
		texts := make([]string, hi-lo)
		for i, c := range chunks[lo:hi] {
			texts[i] = c.Text
		}
		vecs, err := ix.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d/%d: %w", b+1, total, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed batch %d/%d: got %d vectors for %d texts", b+1, total, len(vecs), len(texts))
		}
		for i, v := range vecs {
			entries = append(entries, domain.Entry{ID: uint64(lo + i), Vector: v, Chunk: chunks[lo+i]})
		}
		log.Debug("Embedded batch", "batch", b+1, "of", total)
	}
	return entries, nil
}

func batches(n, size int) int {
	return (n + size - 1) / size
}
