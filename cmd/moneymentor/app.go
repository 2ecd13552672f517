package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"moneymentor/internal/answer"
	"moneymentor/internal/config"
	"moneymentor/internal/domain"
	"moneymentor/internal/embedding"
	"moneymentor/internal/embedding/hashing"
	"moneymentor/internal/embedding/openai"
	"moneymentor/internal/indexer"
	"moneymentor/internal/ingest"
	"moneymentor/internal/lexical"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
	"moneymentor/internal/rerank"
	"moneymentor/internal/rerank/cohere"
	"moneymentor/internal/retrieval"
	"moneymentor/internal/service"
	"moneymentor/internal/vectorstore"
	"moneymentor/internal/vectorstore/memory"
	"moneymentor/internal/vectorstore/pgvector"
	"moneymentor/internal/vectorstore/qdrant"
	"moneymentor/internal/websearch"
	"moneymentor/internal/websearch/tavily"
)

type app struct {
	cfg     *config.AppConfig
	cfgPath string
	svc     *service.Service
	metrics *metrics.Metrics
}

func loadConfig(cmd *cobra.Command) (*config.AppConfig, string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.LoadDefault()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

// newApp assembles the service from configuration. Optional collaborators
// that cannot be configured (reranker, chat model) degrade with a warning.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.FromContext(ctx).With("config", path)
	m := metrics.New()

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	loader := ingest.NewLoader()
	ix := indexer.New(loader, emb, store, indexer.Config{
		Collection:      cfg.VectorStore.Collection,
		EmbedBatchSize:  cfg.Indexer.EmbedBatchSize,
		EmbedPause:      cfg.EmbedPause(),
		UpsertBatchSize: cfg.Indexer.UpsertBatchSize,
	}, m)

	scorer, err := newScorer(cfg)
	if err != nil {
		log.Warn("Reranker disabled, quality mode will keep fused order", "error", err)
		scorer = nil
	}
	reranker := rerank.New(scorer, rerank.Config{
		Timeout:                     time.Duration(cfg.Reranker.TimeoutSecs) * time.Second,
		ErrorPercentThresholdToOpen: cfg.Reranker.ErrorPercentToOpen,
		MinimumRequestToOpen:        cfg.Reranker.MinimumRequests,
		WaitDurationInOpenState:     time.Duration(cfg.Reranker.OpenStateWaitSeconds) * time.Second,
	}, m)

	gen, err := newGenerator(cfg)
	if err != nil {
		log.Warn("Chat model unavailable, answering extractively", "error", err)
		gen = answer.NewExtractive(cfg.Generator.MaxSentences)
	}

	web, err := newSearcher(cfg)
	if err != nil {
		log.Warn("Live search disabled, rate questions without a rate use the knowledge base", "error", err)
		web = nil
	}

	mode, err := domain.ParseMode(cfg.Retrieval.DefaultMode)
	if err != nil {
		return nil, err
	}
	svc := service.New(service.Deps{
		Loader:    loader,
		Embedder:  emb,
		Store:     store,
		Indexer:   ix,
		Reranker:  reranker,
		Generator: gen,
		Web:       web,
		Metrics:   m,
	}, service.Options{
		SourceDir:    cfg.Corpus.SourceDir,
		ProcessedDir: cfg.Corpus.ProcessedDir,
		ChunkSize:    cfg.Chunker.Size,
		ChunkOverlap: cfg.Chunker.Overlap,
		Separator:    cfg.Chunker.Separator,
		Weights:      retrieval.Weights{Lexical: cfg.Retrieval.LexicalWeight, Vector: cfg.Retrieval.VectorWeight},
		InitialK:     cfg.Retrieval.InitialK,
		FinalK:       cfg.Retrieval.FinalK,
		Threshold:    cfg.VectorStore.Threshold,
		BM25:         []lexical.Option{lexical.WithK1(cfg.Retrieval.BM25K1), lexical.WithB(cfg.Retrieval.BM25B)},
		DefaultMode:  mode,
	})
	log.Debug("Application assembled", "embedder", emb.Name(), "store", cfg.VectorStore.Type, "generator", gen.Name())
	return &app{cfg: cfg, cfgPath: path, svc: svc, metrics: m}, nil
}

func newEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "hashing":
		emb = hashing.NewEmbedder(cfg.Embedder.HashingDimension)
	case "openai":
		o := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:    o.BaseURL,
			Path:       o.Path,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Dimension:  o.Dimension,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, cfg.Embedder.Type)
	}
	if cfg.Embedder.CacheSize > 0 {
		return embedding.NewCached(emb, cfg.Embedder.CacheSize)
	}
	return emb, nil
}

func newStore(ctx context.Context, cfg *config.AppConfig) (vectorstore.Storage, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(vs.Collection), nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Collection,
			Distance:   vs.Qdrant.Distance,
			Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		})
	case "pgvector":
		return pgvector.Open(ctx, vs.Pgvector.DSN, vs.Collection)
	default:
		return nil, fmt.Errorf("%w: unknown vector store %q", domain.ErrConfiguration, vs.Type)
	}
}

// newScorer returns a nil scorer when reranking is switched off.
func newScorer(cfg *config.AppConfig) (rerank.Scorer, error) {
	if cfg.Reranker.Type != "cohere" {
		return nil, nil
	}
	c := cfg.Reranker.Cohere
	client, err := cohere.NewClient(cohere.Config{
		BaseURL:   c.BaseURL,
		APIKeyEnv: c.APIKeyEnv,
		Model:     c.Model,
		Timeout:   time.Duration(cfg.Reranker.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newSearcher returns a nil searcher when live search is switched off.
func newSearcher(cfg *config.AppConfig) (websearch.Searcher, error) {
	if cfg.WebSearch.Type != "tavily" {
		return nil, nil
	}
	t := cfg.WebSearch.Tavily
	client, err := tavily.NewClient(tavily.Config{
		BaseURL:    t.BaseURL,
		APIKeyEnv:  t.APIKeyEnv,
		MaxResults: t.MaxResults,
		Timeout:    time.Duration(cfg.WebSearch.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newGenerator(cfg *config.AppConfig) (answer.Generator, error) {
	if cfg.Generator.Type != "openai" {
		return answer.NewExtractive(cfg.Generator.MaxSentences), nil
	}
	o := cfg.Generator.OpenAI
	return answer.NewOpenAI(answer.OpenAIConfig{
		BaseURL:     o.BaseURL,
		APIKeyEnv:   o.APIKeyEnv,
		Model:       o.Model,
		Temperature: o.Temperature,
	})
}

// withApp builds the application, runs fn and closes the store.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.svc.Close(); cerr != nil {
			logger.FromContext(ctx).Warn("Closing vector store failed", "error", cerr)
		}
	}()
	return fn(ctx, a)
}
