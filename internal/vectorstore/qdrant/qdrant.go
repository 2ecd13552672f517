package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"moneymentor/internal/domain"
	"moneymentor/internal/vectorstore"
)

const (
	DefaultCollection = "moneymentor_knowledge"
	defaultPageSize   = 256
)

// Storage is a REST client for one Qdrant collection. It is safe for
// concurrent use and meant to be constructed once per process.
type Storage struct {
	collection string
	distance   string
	pageSize   int
	client     *resty.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Distance   string
	Timeout    time.Duration
	PageSize   int
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: qdrant url is required", domain.ErrConfiguration)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		rc.SetHeader("api-key", cfg.APIKey)
	}
	return &Storage{
		collection: cfg.Collection,
		distance:   cfg.Distance,
		pageSize:   cfg.PageSize,
		client:     rc,
	}, nil
}

type collectionResponse struct {
	Result struct {
		Status      string `json:"status"`
		PointsCount int    `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type payload struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

func (p payload) chunk() domain.Chunk {
	return domain.Chunk{SourceID: p.Source, SequenceIndex: p.ChunkID, Text: p.Text, ByteLength: len(p.Text)}
}

// EnsureCollection creates the collection when it does not exist. An existing
// collection with the same vector size is left untouched.
func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	info, found, err := s.collectionInfo(ctx)
	if err != nil {
		return err
	}
	if !found {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": s.distance,
			},
		}
		status, err := s.do(ctx, http.MethodPut, s.path(""), body, nil)
		if err != nil && status != http.StatusConflict {
			return err
		}
		if status != http.StatusConflict {
			return nil
		}
		if info, _, err = s.collectionInfo(ctx); err != nil {
			return err
		}
	}
	if info.VectorSize != 0 && info.VectorSize != dimension {
		return fmt.Errorf("%w: collection %q has %d dimensions, requested %d",
			domain.ErrDimensionMismatch, s.collection, info.VectorSize, dimension)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     e.ID,
			"vector": e.Vector,
			"payload": map[string]any{
				vectorstore.PayloadText:    e.Chunk.Text,
				vectorstore.PayloadSource:  e.Chunk.SourceID,
				vectorstore.PayloadChunkID: e.Chunk.SequenceIndex,
			},
		}
	}
	_, err := s.do(ctx, http.MethodPut, s.path("/points?wait=true"), map[string]any{"points": points}, nil)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float32, limit int, threshold *float64) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if threshold != nil {
		req["score_threshold"] = *threshold
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.path("/points/search"), req, &resp)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.Candidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		if threshold != nil && r.Score < *threshold {
			continue
		}
		results = append(results, domain.Candidate{Chunk: r.Payload.chunk(), Score: r.Score, Origin: domain.OriginVector})
	}
	domain.SortCandidates(results)
	return results, nil
}

// Scroll pages through every point of the collection in id order.
func (s *Storage) Scroll(ctx context.Context) ([]domain.Chunk, error) {
	var (
		out    []domain.Chunk
		offset any
	)
	for {
		req := map[string]any{
			"limit":        s.pageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload payload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		status, err := s.do(ctx, http.MethodPost, s.path("/points/scroll"), req, &resp)
		if status == http.StatusNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, p.Payload.chunk())
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			return out, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (s *Storage) Info(ctx context.Context) (domain.CollectionInfo, error) {
	info, found, err := s.collectionInfo(ctx)
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	if !found {
		info.Status = "missing"
	}
	return info, nil
}

func (s *Storage) DeleteCollection(ctx context.Context) error {
	status, err := s.do(ctx, http.MethodDelete, s.path(""), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) Close() error { return nil }

func (s *Storage) collectionInfo(ctx context.Context) (domain.CollectionInfo, bool, error) {
	var resp collectionResponse
	status, err := s.do(ctx, http.MethodGet, s.path(""), nil, &resp)
	if status == http.StatusNotFound {
		return domain.CollectionInfo{Name: s.collection}, false, nil
	}
	if err != nil {
		return domain.CollectionInfo{}, false, err
	}
	return domain.CollectionInfo{
		Name:        s.collection,
		VectorSize:  resp.Result.Config.Params.Vectors.Size,
		Distance:    resp.Result.Config.Params.Vectors.Distance,
		PointsCount: resp.Result.PointsCount,
		Status:      resp.Result.Status,
	}, true, nil
}

func (s *Storage) path(suffix string) string {
	return "/collections/" + url.PathEscape(s.collection) + suffix
}

// do sends one request and decodes the response into out. The returned
// status is zero when the request never reached the server.
func (s *Storage) do(ctx context.Context, method, path string, body, out any) (int, error) {
	req := s.client.R().SetContext(ctx)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		req.SetQueryString(path[i+1:])
		path = path[:i]
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrConnectivity, method, path, err)
	}
	status := resp.StatusCode()
	if status >= 300 {
		var apiErr struct {
			Status struct {
				Error string `json:"error"`
			} `json:"status"`
		}
		msg := resp.Status()
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Status.Error != "" {
			msg = apiErr.Status.Error
		}
		return status, fmt.Errorf("%w: qdrant %s %s failed: %s", domain.ErrConnectivity, method, path, msg)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return status, fmt.Errorf("qdrant: decode %s response: %w", path, err)
		}
	}
	return status, nil
}
