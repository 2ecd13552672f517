// Package service ties retrieval, indexing, the calculator and answer
// generation together behind the operations the CLI and HTTP server expose.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"moneymentor/internal/answer"
	"moneymentor/internal/calculator"
	"moneymentor/internal/domain"
	"moneymentor/internal/embedding"
	"moneymentor/internal/indexer"
	"moneymentor/internal/ingest"
	"moneymentor/internal/lexical"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
	"moneymentor/internal/retrieval"
	"moneymentor/internal/vectorstore"
	"moneymentor/internal/websearch"
)

const (
	ToolCalculator = "calculator"
	ToolRAG        = "rag"
	ToolWebSearch  = "web_search"

	calculatorModel  = "calculator_agent"
	calculatorSource = "financial_calculator"
	snippetLength    = 200

	webResults   = 2
	webResultLen = 150
)

// ErrBusy is returned when an index or reload run is already in progress.
var ErrBusy = errors.New("knowledge base reload already in progress")

// Options holds the tunables of the online and offline paths.
type Options struct {
	SourceDir    string
	ProcessedDir string
	ChunkSize    int
	ChunkOverlap int
	Separator    string
	Weights      retrieval.Weights
	InitialK     int
	FinalK       int
	Threshold    *float64
	BM25         []lexical.Option
	DefaultMode  domain.Mode
}

// Deps are the collaborators a Service is assembled from. Reranker, Web and
// Metrics may be nil.
type Deps struct {
	Loader    domain.DocumentLoader
	Embedder  embedding.Embedder
	Store     vectorstore.Storage
	Indexer   *indexer.Indexer
	Reranker  retrieval.Reranker
	Generator answer.Generator
	Web       websearch.Searcher
	Metrics   *metrics.Metrics
}

type Service struct {
	deps Deps
	opts Options

	retriever atomic.Pointer[retrieval.Retriever]
	lexCount  atomic.Int64
	runMu     sync.Mutex
	buildMu   sync.Mutex
}

func New(deps Deps, opts Options) *Service {
	if opts.InitialK <= 0 {
		opts.InitialK = retrieval.DefaultInitialK
	}
	if opts.FinalK <= 0 {
		opts.FinalK = retrieval.DefaultFinalK
	}
	if opts.Weights == (retrieval.Weights{}) {
		opts.Weights = retrieval.DefaultWeights()
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = domain.ModeQuality
	}
	return &Service{deps: deps, opts: opts}
}

func (s *Service) DefaultMode() domain.Mode { return s.opts.DefaultMode }

func (s *Service) DefaultK() int { return s.opts.FinalK }

// Rebuild derives the lexical index from the chunks currently persisted in the
// vector store and atomically swaps in a retriever built over both. It
// returns the number of chunks indexed lexically.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	chunks, err := s.deps.Store.Scroll(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: rebuild: %w", err)
	}
	lex := lexical.Build(chunks, s.opts.BM25...)
	vec := retrieval.NewVectorRetriever(s.deps.Embedder, s.deps.Store, s.opts.Threshold)
	hybrid := retrieval.NewHybrid(lex, vec, s.opts.Weights, s.opts.InitialK)
	r := retrieval.NewRetriever(
		retrieval.NewFast(vec),
		retrieval.NewQuality(hybrid, s.deps.Reranker),
		retrieval.WithMetrics(s.deps.Metrics),
		retrieval.WithDefaultK(s.opts.FinalK),
	)
	s.retriever.Store(r)
	s.lexCount.Store(int64(lex.Len()))
	logger.FromContext(ctx).Info("Retrieval path rebuilt", "chunks", lex.Len())
	return lex.Len(), nil
}

func (s *Service) currentRetriever(ctx context.Context) (*retrieval.Retriever, error) {
	if r := s.retriever.Load(); r != nil {
		return r, nil
	}
	if _, err := s.Rebuild(ctx); err != nil {
		return nil, err
	}
	return s.retriever.Load(), nil
}

// Retrieve runs one retrieval. A zero mode uses the configured default.
func (s *Service) Retrieve(ctx context.Context, query string, mode domain.Mode, k int) (domain.Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return domain.Retrieval{}, domain.ErrEmptyQuery
	}
	if mode == "" {
		mode = s.opts.DefaultMode
	}
	mode, err := domain.ParseMode(string(mode))
	if err != nil {
		return domain.Retrieval{}, err
	}
	r, err := s.currentRetriever(ctx)
	if err != nil {
		// The store could not be read; report an empty result like any
		// other collaborator failure.
		logger.FromContext(ctx).Warn("Retrieval path unavailable", "error", err)
		return domain.Retrieval{Query: strings.TrimSpace(query), Mode: mode, Diagnostic: err.Error()}, nil
	}
	return r.Retrieve(ctx, query, mode, k)
}

type AskRequest struct {
	Question string
	K        int
	Mode     domain.Mode
}

type Source struct {
	Source  string  `json:"source"`
	ChunkID int     `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

// Answer carries its own attribution: which tool produced it and with which
// model and retrieval mode.
type Answer struct {
	Answer      string             `json:"answer"`
	Sources     []Source           `json:"sources"`
	Query       string             `json:"query"`
	Model       string             `json:"model"`
	Tool        string             `json:"tool"`
	Mode        domain.Mode        `json:"mode,omitempty"`
	Diagnostic  string             `json:"diagnostic,omitempty"`
	Calculation *calculator.Result `json:"calculation,omitempty"`
	Contexts    []string           `json:"-"`
}

// Ask answers question with the calculator when it looks like a growth
// calculation it can parse, and with retrieval plus generation otherwise.
func (s *Service) Ask(ctx context.Context, req AskRequest) (Answer, error) {
	q := strings.TrimSpace(req.Question)
	if q == "" {
		return Answer{}, domain.ErrEmptyQuery
	}
	log := logger.FromContext(ctx)
	if calculator.IsCalculation(q) {
		res := calculator.Run(q)
		if res.Success {
			log.Info("Answered by calculator", "value", res.Value.String())
			return calculatorAnswer(q, res), nil
		}
		if res.NeedsLiveRate && s.deps.Web != nil {
			if out, ok := s.liveRateAnswer(ctx, q, res); ok {
				return out, nil
			}
		}
		log.Debug("Calculator could not parse question, using retrieval")
	}

	mode := req.Mode
	if mode == "" {
		mode = s.opts.DefaultMode
	}
	ret, err := s.Retrieve(ctx, q, mode, req.K)
	if err != nil {
		return Answer{}, err
	}
	out := Answer{
		Query:      q,
		Tool:       ToolRAG,
		Mode:       ret.Mode,
		Model:      s.deps.Generator.Name(),
		Diagnostic: ret.Diagnostic,
		Sources:    make([]Source, 0, len(ret.Candidates)),
		Contexts:   make([]string, 0, len(ret.Candidates)),
	}
	for _, c := range ret.Candidates {
		out.Sources = append(out.Sources, Source{
			Source:  c.Chunk.SourceID,
			ChunkID: c.Chunk.SequenceIndex,
			Score:   c.Score,
			Text:    snippet(c.Chunk.Text),
		})
		out.Contexts = append(out.Contexts, c.Chunk.Text)
	}
	if len(ret.Candidates) == 0 {
		log.Warn("No relevant context found", "mode", ret.Mode)
		out.Answer = answer.NoInformation
		return out, nil
	}
	text, err := s.deps.Generator.Generate(ctx, q, ret.Candidates)
	if err != nil {
		return Answer{}, fmt.Errorf("service: ask: %w", err)
	}
	out.Answer = text
	return out, nil
}

func calculatorAnswer(q string, res calculator.Result) Answer {
	p := res.Params
	params := fmt.Sprintf("kind=%s amount=%s annual_rate=%s%% years=%d", p.Kind, p.Amount, p.AnnualRate, p.Years)
	return Answer{
		Answer: "MoneyMentor Calculator\n\n" + res.Explanation,
		Sources: []Source{{
			Source: calculatorSource,
			Score:  1,
			Text:   "Calculated with parameters: " + params,
		}},
		Query:       q,
		Model:       calculatorModel,
		Tool:        ToolCalculator,
		Calculation: &res,
	}
}

// liveRateAnswer looks the missing rate up on the web. When a rate can be
// read from the results the calculation is completed with it; otherwise the
// search summary itself is the answer. ok is false when the search failed or
// came back empty, so the caller falls through to retrieval.
func (s *Service) liveRateAnswer(ctx context.Context, q string, res calculator.Result) (Answer, bool) {
	log := logger.FromContext(ctx).With("searcher", s.deps.Web.Name())
	resp, err := s.deps.Web.Search(ctx, q)
	if err != nil {
		log.Warn("Live rate search failed", "error", err)
		return Answer{}, false
	}
	summary := websearch.Summary(resp, webResults, webResultLen)
	if summary == "" {
		log.Warn("Live rate search returned nothing")
		return Answer{}, false
	}
	sources := make([]Source, 0, webResults)
	texts := []string{resp.Answer}
	for i, r := range resp.Results {
		if i == webResults {
			break
		}
		sources = append(sources, Source{Source: r.URL, Score: r.Score, Text: snippet(r.Content)})
		texts = append(texts, r.Content)
	}

	if rate, ok := calculator.ExtractRate(strings.Join(texts, "\n")); ok && res.Params != nil {
		calc := calculator.WithRate(*res.Params, rate)
		if calc.Success {
			log.Info("Answered by calculator with live rate", "rate", rate.String(), "value", calc.Value.String())
			out := calculatorAnswer(q, calc)
			out.Answer = fmt.Sprintf("MoneyMentor Calculator\n\nUsing a current rate of %s%% found by live search.\n\n%s",
				rate.String(), calc.Explanation)
			out.Sources = append(out.Sources, sources...)
			return out, true
		}
	}
	log.Info("Answered by live search")
	return Answer{
		Answer:   "Live search results:\n\n" + summary,
		Sources:  sources,
		Query:    q,
		Model:    s.deps.Web.Name(),
		Tool:     ToolWebSearch,
		Contexts: texts,
	}, true
}

func snippet(text string) string {
	r := []rune(text)
	if len(r) <= snippetLength {
		return text
	}
	return string(r[:snippetLength]) + "..."
}

// Index runs the indexer over req.CorpusDir and rebuilds the retrieval path
// from whatever was persisted, including after a partial failure.
func (s *Service) Index(ctx context.Context, req indexer.Request) (domain.IndexResult, error) {
	if !s.runMu.TryLock() {
		return domain.IndexResult{}, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.indexLocked(ctx, req), nil
}

func (s *Service) indexLocked(ctx context.Context, req indexer.Request) domain.IndexResult {
	if req.ChunkSize == 0 {
		req.ChunkSize, req.ChunkOverlap = s.opts.ChunkSize, s.opts.ChunkOverlap
	}
	if req.Separator == "" {
		req.Separator = s.opts.Separator
	}
	res := s.deps.Indexer.Index(ctx, req)
	if _, err := s.Rebuild(ctx); err != nil {
		logger.FromContext(ctx).Warn("Lexical rebuild after indexing failed", "error", err)
	}
	return res
}

type ReloadResult struct {
	Reloaded       bool               `json:"reloaded"`
	Message        string             `json:"message"`
	FilesProcessed int                `json:"files_processed"`
	Index          domain.IndexResult `json:"index"`
	Elapsed        time.Duration      `json:"-"`
}

// Reload extracts text from the source directory into the processed
// directory, reindexes it from scratch and rebuilds the retrieval path.
func (s *Service) Reload(ctx context.Context) (ReloadResult, error) {
	if !s.runMu.TryLock() {
		return ReloadResult{}, ErrBusy
	}
	defer s.runMu.Unlock()
	start := time.Now()
	log := logger.FromContext(ctx).With("source", s.opts.SourceDir, "processed", s.opts.ProcessedDir)
	log.Info("Reloading knowledge base")

	docs, err := s.deps.Loader.Load(ctx, s.opts.SourceDir)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("service: reload: %w", err)
	}
	if len(docs) == 0 {
		log.Warn("No files were processed")
		return ReloadResult{Message: "No files found or processed. Check data/ directory.", Elapsed: time.Since(start)}, nil
	}
	written, err := ingest.Export(ctx, docs, s.opts.ProcessedDir)
	if err != nil {
		return ReloadResult{}, fmt.Errorf("service: reload: %w", err)
	}

	res := s.indexLocked(ctx, indexer.Request{CorpusDir: s.opts.ProcessedDir, Recreate: true})
	out := ReloadResult{FilesProcessed: len(written), Index: res, Elapsed: time.Since(start)}
	if !res.Success {
		out.Message = "Text extraction succeeded but indexing failed: " + res.Error
		log.Error("Reload failed", "error", res.Error)
		return out, nil
	}
	out.Reloaded = true
	out.Message = fmt.Sprintf("Successfully reloaded knowledge base! Processed %d document(s), created %d chunk(s), indexed %d vector(s).",
		res.DocumentsProcessed, res.ChunksCreated, res.VectorsIndexed)
	log.Info("Reload finished", "files", len(written), "vectors", res.VectorsIndexed, "elapsed", out.Elapsed)
	return out, nil
}

// Info describes the collection and the lexical index currently served.
type Info struct {
	Collection    domain.CollectionInfo `json:"collection"`
	LexicalChunks int                   `json:"lexical_chunks"`
	Embedder      string                `json:"embedder"`
	Dimension     int                   `json:"dimension"`
	Generator     string                `json:"generator"`
	DefaultMode   domain.Mode           `json:"default_mode"`
}

func (s *Service) Info(ctx context.Context) (Info, error) {
	ci, err := s.deps.Store.Info(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("service: info: %w", err)
	}
	return Info{
		Collection:    ci,
		LexicalChunks: int(s.lexCount.Load()),
		Embedder:      s.deps.Embedder.Name(),
		Dimension:     s.deps.Embedder.Dimension(),
		Generator:     s.deps.Generator.Name(),
		DefaultMode:   s.opts.DefaultMode,
	}, nil
}

func (s *Service) Close() error {
	return s.deps.Store.Close()
}
