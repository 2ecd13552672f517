package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"moneymentor/internal/domain"
	"moneymentor/internal/websearch"
)

const (
	DefaultBaseURL    = "https://api.tavily.com"
	DefaultMaxResults = 2
)

type Config struct {
	BaseURL    string
	APIKeyEnv  string
	APIKey     string
	MaxResults int
	Timeout    time.Duration
}

// Client calls the Tavily search endpoint with basic depth and a generated
// answer.
type Client struct {
	maxResults int
	http       *resty.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "TAVILY_API_KEY"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
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
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(key).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{maxResults: cfg.MaxResults, http: rc}, nil
}

func (c *Client) Name() string { return "tavily" }

type searchRequest struct {
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	SearchDepth       string `json:"search_depth"`
	IncludeAnswer     bool   `json:"include_answer"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string) (websearch.Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(searchRequest{
			Query:         query,
			MaxResults:    c.maxResults,
			SearchDepth:   "basic",
			IncludeAnswer: true,
		}).
		Post("/search")
	if err != nil {
		return websearch.Response{}, fmt.Errorf("%w: tavily search: %v", domain.ErrConnectivity, err)
	}
	if resp.IsError() {
		return websearch.Response{}, fmt.Errorf("%w: tavily search: status %d: %s",
			domain.ErrConnectivity, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	var out searchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return websearch.Response{}, fmt.Errorf("tavily search: decode response: %w", err)
	}
	res := websearch.Response{Answer: out.Answer, Results: make([]websearch.Result, 0, len(out.Results))}
	for i, r := range out.Results {
		if i == c.maxResults {
			break
		}
		res.Results = append(res.Results, websearch.Result{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return res, nil
}
