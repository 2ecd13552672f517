package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"moneymentor/internal/domain"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
	DefaultPath    = "/embeddings"
)

// Client is an OpenAI-compatible embeddings client. It also understands the
// Ollama /api/embed response shape.
type Client struct {
	model      string
	path       string
	client     *resty.Client
	maxRetries uint64
	retryBase  time.Duration
	retryCap   time.Duration

	mu        sync.RWMutex
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	Path      string
	APIKeyEnv string
	// APIKey takes precedence over APIKeyEnv when set.
	APIKey     string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: missing embedding API key in env %s", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = 5
	case retries < 0:
		retries = 0
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(t).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(key)
	return &Client{
		model:      cfg.Model,
		path:       cfg.Path,
		client:     rc,
		maxRetries: uint64(retries), // #nosec G115 -- clamped above
		retryBase:  base,
		retryCap:   5 * time.Second,
		dimension:  cfg.Dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the configured dimension, or the one learned from the
// first response when none was configured.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedDocuments embeds all texts in one request, retrying on rate limits,
// server errors and transport failures.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var retryAfter time.Duration
	base := retry.WithMaxRetries(c.maxRetries, retry.WithCappedDuration(c.retryCap, retry.NewExponential(c.retryBase)))
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := base.Next()
		if stop {
			return 0, true
		}
		if retryAfter > 0 {
			d, retryAfter = retryAfter, 0
		}
		return d, false
	})

	var vectors [][]float32
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.client.R().
			SetContext(ctx).
			SetBody(map[string]any{"model": c.model, "input": texts}).
			Post(c.path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("%w: embeddings request: %v", domain.ErrConnectivity, err))
		}
		status := resp.StatusCode()
		switch {
		case status == http.StatusTooManyRequests || status >= 500:
			if secs, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
			return retry.RetryableError(fmt.Errorf("%w: embeddings failed: %s", domain.ErrConnectivity, resp.Status()))
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return fmt.Errorf("%w: embeddings rejected credentials: %s", domain.ErrConfiguration, resp.Status())
		case status >= 300:
			return fmt.Errorf("%w: embeddings failed: %s", domain.ErrConnectivity, resp.Status())
		}
		out, parseErr := decodeEmbeddings(resp.Body(), len(texts))
		if parseErr != nil {
			return retry.RetryableError(parseErr)
		}
		vectors = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := c.checkDimension(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *Client) checkDimension(vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range vectors {
		if c.dimension == 0 {
			c.dimension = len(v)
		}
		if len(v) != c.dimension {
			return fmt.Errorf("%w: embedding has %d dimensions, expected %d",
				domain.ErrDimensionMismatch, len(v), c.dimension)
		}
	}
	return nil
}

func decodeEmbeddings(payload []byte, want int) ([][]float32, error) {
	// OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		if len(openaiOut.Data) != want {
			return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(openaiOut.Data), want)
		}
		out := make([][]float32, want)
		for _, d := range openaiOut.Data {
			if d.Index < 0 || d.Index >= want || out[d.Index] != nil {
				return nil, fmt.Errorf("embeddings: invalid index %d in response", d.Index)
			}
			out[d.Index] = d.Embedding
		}
		return out, nil
	}
	// Ollama /api/embed shape: { "embeddings": [[...], ...] }
	var ollamaOut struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embeddings) > 0 {
		if len(ollamaOut.Embeddings) != want {
			return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(ollamaOut.Embeddings), want)
		}
		return ollamaOut.Embeddings, nil
	}
	return nil, errors.New("embeddings: no embedding returned")
}
