package cohere

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"moneymentor/internal/domain"
	"moneymentor/internal/rerank"
)

const (
	DefaultBaseURL = "https://api.cohere.ai"
	DefaultModel   = "rerank-english-v2.0"
)

type Config struct {
	BaseURL   string
	APIKeyEnv string
	APIKey    string
	Model     string
	Timeout   time.Duration
}

// Client calls the Cohere rerank endpoint.
type Client struct {
	model string
	http  *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "COHERE_API_KEY"
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(key).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{model: cfg.Model, http: rc}, nil
}

func (c *Client) Model() string { return c.model }

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]rerank.Score, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rerankRequest{Model: c.model, Query: query, Documents: documents, TopN: topN}).
		Post("/v1/rerank")
	if err != nil {
		return nil, fmt.Errorf("%w: cohere rerank: %v", domain.ErrConnectivity, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: cohere rerank: status %d: %s",
			domain.ErrConnectivity, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	var out rerankResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("cohere rerank: decode response: %w", err)
	}
	scores := make([]rerank.Score, len(out.Results))
	for i, r := range out.Results {
		scores[i] = rerank.Score{Index: r.Index, Relevance: r.RelevanceScore}
	}
	return scores, nil
}
