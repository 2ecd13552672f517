package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"moneymentor/internal/domain"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Path        string `yaml:"path"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"    validate:"min=0"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"min=0"`
	MaxRetries  int    `yaml:"max_retries"  validate:"min=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type             string                `yaml:"type"              validate:"oneof=openai hashing"`
	OpenAI           *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	HashingDimension int                   `yaml:"hashing_dimension" validate:"min=0"`
	CacheSize        int                   `yaml:"cache_size"        validate:"min=0"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size      int    `yaml:"chunk_size"    validate:"min=1"`
	Overlap   int    `yaml:"chunk_overlap" validate:"min=0"`
	Separator string `yaml:"separator"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type       string          `yaml:"type"       validate:"oneof=qdrant memory pgvector"`
	Collection string          `yaml:"collection" validate:"required"`
	Threshold  *float64        `yaml:"score_threshold,omitempty"`
	Qdrant     *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pgvector   *PgvectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Distance    string `yaml:"distance"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type PgvectorConfig struct {
	DSN string `yaml:"dsn"`
}

// RetrievalConfig holds the fusion weights and candidate pool sizes.
type RetrievalConfig struct {
	DefaultMode   string  `yaml:"default_mode"   validate:"oneof=fast quality"`
	InitialK      int     `yaml:"initial_k"      validate:"min=1"`
	FinalK        int     `yaml:"final_k"        validate:"min=1,max=20"`
	LexicalWeight float64 `yaml:"lexical_weight" validate:"min=0,max=1"`
	VectorWeight  float64 `yaml:"vector_weight"  validate:"min=0,max=1"`
	BM25K1        float64 `yaml:"bm25_k1"        validate:"gt=0"`
	BM25B         float64 `yaml:"bm25_b"         validate:"min=0,max=1"`
}

type CohereConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// RerankerConfig configures the quality-mode reranker and its call guard.
type RerankerConfig struct {
	Type                 string        `yaml:"type"                    validate:"oneof=cohere none"`
	Cohere               *CohereConfig `yaml:"cohere,omitempty"`
	TimeoutSecs          int           `yaml:"timeout_secs"            validate:"min=1"`
	ErrorPercentToOpen   int           `yaml:"error_percent_to_open"   validate:"min=1,max=100"`
	MinimumRequests      int           `yaml:"minimum_requests"        validate:"min=1"`
	OpenStateWaitSeconds int           `yaml:"open_state_wait_seconds" validate:"min=1"`
}

type OpenAIChatConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	// Temperature is a pointer so that an explicit 0 survives defaulting.
	Temperature *float64 `yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
}

// GeneratorConfig selects how answers are written.
type GeneratorConfig struct {
	Type         string            `yaml:"type"          validate:"oneof=openai extractive"`
	OpenAI       *OpenAIChatConfig `yaml:"openai,omitempty"`
	MaxSentences int               `yaml:"max_sentences" validate:"min=0"`
}

// IndexerConfig holds batch sizes and pacing for indexing runs.
type IndexerConfig struct {
	EmbedBatchSize   int `yaml:"embed_batch_size"   validate:"min=1"`
	EmbedPauseMillis int `yaml:"embed_pause_millis" validate:"min=0"`
	UpsertBatchSize  int `yaml:"upsert_batch_size"  validate:"min=1"`
}

type TavilyConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxResults int    `yaml:"max_results" validate:"min=0,max=10"`
}

// WebSearchConfig selects the live lookup used for questions about current rates.
type WebSearchConfig struct {
	Type        string        `yaml:"type"         validate:"oneof=tavily none"`
	Tavily      *TavilyConfig `yaml:"tavily,omitempty"`
	TimeoutSecs int           `yaml:"timeout_secs" validate:"min=0"`
}

type CorpusConfig struct {
	SourceDir    string `yaml:"source_dir"    validate:"required"`
	ProcessedDir string `yaml:"processed_dir" validate:"required"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"              validate:"required"`
	ReadTimeoutSecs int    `yaml:"read_timeout_secs" validate:"min=0"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	WebSearch   WebSearchConfig   `yaml:"web_search"`
	Server      ServerConfig      `yaml:"server"`
}

// EmbedPause is the pause between embedding batches.
func (c *AppConfig) EmbedPause() time.Duration {
	return time.Duration(c.Indexer.EmbedPauseMillis) * time.Millisecond
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied before validation.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnv(cfg)
			return cfg, Validate(cfg)
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}
	applyConfigDefaults(cfg)
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/moneymentor/config.yaml.
// If neither exists, it writes defaults to ~/.config/moneymentor/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "moneymentor", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder: EmbedderConfig{
			Type:      "openai",
			OpenAI:    &OpenAIEmbedderConfig{},
			CacheSize: 256,
		},
		Chunker: ChunkerConfig{Size: 800, Overlap: 100, Separator: "\n"},
		VectorStore: VectorStoreConfig{
			Type:       "qdrant",
			Collection: "moneymentor_knowledge",
			Qdrant:     &QdrantConfig{URL: "http://localhost:6333"},
		},
		Retrieval: RetrievalConfig{
			DefaultMode:   "quality",
			InitialK:      20,
			FinalK:        5,
			LexicalWeight: 0.4,
			VectorWeight:  0.6,
			BM25K1:        1.5,
			BM25B:         0.75,
		},
		Reranker: RerankerConfig{Type: "cohere", Cohere: &CohereConfig{}},
		Generator: GeneratorConfig{
			Type:   "openai",
			OpenAI: &OpenAIChatConfig{},
		},
		Indexer:   IndexerConfig{EmbedBatchSize: 20, EmbedPauseMillis: 500, UpsertBatchSize: 100},
		Corpus:    CorpusConfig{SourceDir: "data", ProcessedDir: filepath.Join("data", "processed")},
		WebSearch: WebSearchConfig{Type: "tavily", Tavily: &TavilyConfig{}},
		Server:    ServerConfig{Addr: ":8000", ReadTimeoutSecs: 30},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 800
	}
	if cfg.Chunker.Separator == "" {
		cfg.Chunker.Separator = "\n"
	}
	if cfg.Embedder.HashingDimension == 0 {
		cfg.Embedder.HashingDimension = 512
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.Dimension == 0 {
			o.Dimension = 1536
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.Distance == "" {
			cfg.VectorStore.Qdrant.Distance = "Cosine"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Reranker.Type == "cohere" {
		if cfg.Reranker.Cohere == nil {
			cfg.Reranker.Cohere = &CohereConfig{}
		}
		if cfg.Reranker.Cohere.APIKeyEnv == "" {
			cfg.Reranker.Cohere.APIKeyEnv = "COHERE_API_KEY"
		}
		if cfg.Reranker.Cohere.Model == "" {
			cfg.Reranker.Cohere.Model = "rerank-english-v2.0"
		}
	}
	if cfg.Reranker.TimeoutSecs == 0 {
		cfg.Reranker.TimeoutSecs = 10
	}
	if cfg.Reranker.ErrorPercentToOpen == 0 {
		cfg.Reranker.ErrorPercentToOpen = 50
	}
	if cfg.Reranker.MinimumRequests == 0 {
		cfg.Reranker.MinimumRequests = 5
	}
	if cfg.Reranker.OpenStateWaitSeconds == 0 {
		cfg.Reranker.OpenStateWaitSeconds = 30
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIChatConfig{}
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Generator.OpenAI.Temperature == nil {
			t := 0.7
			cfg.Generator.OpenAI.Temperature = &t
		}
	}
	if cfg.WebSearch.Type == "" {
		cfg.WebSearch.Type = "tavily"
	}
	if cfg.WebSearch.Type == "tavily" {
		if cfg.WebSearch.Tavily == nil {
			cfg.WebSearch.Tavily = &TavilyConfig{}
		}
		if cfg.WebSearch.Tavily.APIKeyEnv == "" {
			cfg.WebSearch.Tavily.APIKeyEnv = "TAVILY_API_KEY"
		}
		if cfg.WebSearch.Tavily.MaxResults == 0 {
			cfg.WebSearch.Tavily.MaxResults = 2
		}
	}
	if cfg.WebSearch.TimeoutSecs == 0 {
		cfg.WebSearch.TimeoutSecs = 15
	}
	if cfg.Generator.MaxSentences == 0 {
		cfg.Generator.MaxSentences = 3
	}
}

// applyEnv overlays deployment endpoints and secrets from the environment.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("MONEYMENTOR_VECTOR_STORE"); v != "" {
		cfg.VectorStore.Type = strings.ToLower(v)
	}
	if v := os.Getenv("MONEYMENTOR_EMBEDDER"); v != "" {
		cfg.Embedder.Type = strings.ToLower(v)
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if cfg.VectorStore.Pgvector == nil {
			cfg.VectorStore.Pgvector = &PgvectorConfig{}
		}
		cfg.VectorStore.Pgvector.DSN = v
	}
	// A type switched by the environment still needs its backend defaults.
	applyConfigDefaults(cfg)
}

var validate = validator.New()

// Validate checks field ranges and the cross-field constraints. Failures wrap
// domain.ErrConfiguration.
func Validate(cfg *AppConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	var problems []string
	if cfg.Chunker.Overlap >= cfg.Chunker.Size {
		problems = append(problems, fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Chunker.Overlap, cfg.Chunker.Size))
	}
	if cfg.Retrieval.LexicalWeight == 0 && cfg.Retrieval.VectorWeight == 0 {
		problems = append(problems, "lexical_weight and vector_weight cannot both be zero")
	}
	if cfg.Retrieval.FinalK > cfg.Retrieval.InitialK {
		problems = append(problems, fmt.Sprintf("final_k (%d) must not exceed initial_k (%d)",
			cfg.Retrieval.FinalK, cfg.Retrieval.InitialK))
	}
	switch cfg.VectorStore.Type {
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil || cfg.VectorStore.Qdrant.URL == "" {
			problems = append(problems, "vector_store.qdrant.url is required")
		}
	case "pgvector":
		if cfg.VectorStore.Pgvector == nil || cfg.VectorStore.Pgvector.DSN == "" {
			problems = append(problems, "vector_store.pgvector.dsn is required")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
