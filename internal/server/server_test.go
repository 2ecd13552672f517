package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
	"moneymentor/internal/service"
)

type fakePort struct {
	lastAsk   service.AskRequest
	askErr    error
	reloadErr error
	retrieval domain.Retrieval
}

func (f *fakePort) Ask(_ context.Context, req service.AskRequest) (service.Answer, error) {
	f.lastAsk = req
	if f.askErr != nil {
		return service.Answer{}, f.askErr
	}
	return service.Answer{
		Answer:  "Diversify.",
		Sources: []service.Source{{Source: "basics.txt", ChunkID: 2, Score: 0.8, Text: "Diversify."}},
		Query:   req.Question,
		Model:   "gpt-4o-mini",
		Tool:    service.ToolRAG,
		Mode:    domain.ModeQuality,
	}, nil
}

func (f *fakePort) Retrieve(_ context.Context, query string, mode domain.Mode, _ int) (domain.Retrieval, error) {
	if mode == "" {
		mode = domain.ModeQuality
	}
	r := f.retrieval
	r.Query, r.Mode = query, mode
	return r, nil
}

func (f *fakePort) Reload(context.Context) (service.ReloadResult, error) {
	if f.reloadErr != nil {
		return service.ReloadResult{}, f.reloadErr
	}
	return service.ReloadResult{Reloaded: true, Message: "Successfully reloaded knowledge base!", FilesProcessed: 3}, nil
}

func (f *fakePort) Info(context.Context) (service.Info, error) {
	return service.Info{
		Collection:    domain.CollectionInfo{Name: "moneymentor_knowledge", VectorSize: 1536, Distance: "Cosine", PointsCount: 42, Status: "green"},
		LexicalChunks: 42,
	}, nil
}

func (f *fakePort) DefaultMode() domain.Mode { return domain.ModeQuality }

func (f *fakePort) DefaultK() int { return 5 }

func newTestServer(port Port) (*Server, *metrics.Metrics) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	return New(port, m, Config{}, logger.NewLogger(logger.TestConfig())), m
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	t.Run("Should report ok", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{})
		w := do(t, s.Handler(), http.MethodGet, "/api/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	})
}

func TestChat(t *testing.T) {
	t.Run("Should answer with attribution and default k", func(t *testing.T) {
		port := &fakePort{}
		s, _ := newTestServer(port)

		w := do(t, s.Handler(), http.MethodPost, "/api/chat", gin.H{"question": "How do I diversify?"})
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		assert.Equal(t, "Diversify.", body["answer"])
		assert.Equal(t, "How do I diversify?", body["query"])
		assert.Equal(t, "rag", body["tool"])
		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.Equal(t, "quality", body["mode"])
		require.Len(t, body["sources"], 1)
		assert.Equal(t, 5, port.lastAsk.K)
		assert.Equal(t, domain.Mode(""), port.lastAsk.Mode)
	})

	t.Run("Should pass mode and k through", func(t *testing.T) {
		port := &fakePort{}
		s, _ := newTestServer(port)

		w := do(t, s.Handler(), http.MethodPost, "/api/chat", gin.H{"question": "q", "k": 3, "mode": "fast"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 3, port.lastAsk.K)
		assert.Equal(t, domain.ModeFast, port.lastAsk.Mode)
	})

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing question", gin.H{"k": 5}},
		{"k above twenty", gin.H{"question": "q", "k": 21}},
		{"negative k", gin.H{"question": "q", "k": -1}},
		{"unknown mode", gin.H{"question": "q", "mode": "multi"}},
	}
	for _, tc := range cases {
		t.Run("Should reject "+tc.name, func(t *testing.T) {
			s, _ := newTestServer(&fakePort{})
			w := do(t, s.Handler(), http.MethodPost, "/api/chat", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, decode(t, w), "detail")
		})
	}

	t.Run("Should reject questions over a thousand characters", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{})
		long := make([]byte, 1001)
		for i := range long {
			long[i] = 'a'
		}
		w := do(t, s.Handler(), http.MethodPost, "/api/chat", gin.H{"question": string(long)})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Should map service errors to statuses", func(t *testing.T) {
		cases := []struct {
			err    error
			status int
		}{
			{domain.ErrEmptyQuery, http.StatusBadRequest},
			{fmt.Errorf("wrapped: %w", domain.ErrConnectivity), http.StatusBadGateway},
			{errors.New("generator exploded"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			s, _ := newTestServer(&fakePort{askErr: tc.err})
			w := do(t, s.Handler(), http.MethodPost, "/api/chat", gin.H{"question": "q"})
			assert.Equal(t, tc.status, w.Code, tc.err.Error())
			assert.Contains(t, decode(t, w)["detail"], "Error processing question: ")
		}
	})
}

func TestRetrieve(t *testing.T) {
	t.Run("Should return ranked chunks", func(t *testing.T) {
		port := &fakePort{retrieval: domain.Retrieval{
			Candidates: []domain.Candidate{
				{Chunk: domain.Chunk{SourceID: "roth.txt", SequenceIndex: 0, Text: "Roth IRA"}, Score: 0.9, Rank: 1, Origin: domain.OriginReranked},
				{Chunk: domain.Chunk{SourceID: "ira.txt", SequenceIndex: 4, Text: "Traditional IRA"}, Score: 0.5, Rank: 2, Origin: domain.OriginReranked},
			},
			Reranked: true,
			Elapsed:  12 * time.Millisecond,
		}}
		s, _ := newTestServer(port)

		w := do(t, s.Handler(), http.MethodPost, "/api/retrieve", gin.H{"query": "roth ira"})
		require.Equal(t, http.StatusOK, w.Code)

		var got retrieveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, "roth ira", got.Query)
		assert.Equal(t, domain.ModeQuality, got.Mode)
		assert.True(t, got.Reranked)
		assert.Equal(t, int64(12), got.ElapsedMS)
		require.Len(t, got.Results, 2)
		assert.Equal(t, retrievedChunk{Rank: 2, Score: 0.5, Origin: "reranked", Source: "ira.txt", ChunkID: 4, Text: "Traditional IRA"}, got.Results[1])
	})
}

func TestReload(t *testing.T) {
	t.Run("Should return the reload summary", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{})
		w := do(t, s.Handler(), http.MethodPost, "/api/reload_knowledge", nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["reloaded"])
		assert.Equal(t, float64(3), body["files_processed"])
	})

	t.Run("Should answer conflict while a reload runs", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{reloadErr: service.ErrBusy})
		w := do(t, s.Handler(), http.MethodPost, "/api/reload_knowledge", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCollection(t *testing.T) {
	t.Run("Should describe the collection", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{})
		w := do(t, s.Handler(), http.MethodGet, "/api/collection", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got service.Info
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, 42, got.Collection.PointsCount)
		assert.Equal(t, "moneymentor_knowledge", got.Collection.Name)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Should assign and echo request ids", func(t *testing.T) {
		s, _ := newTestServer(&fakePort{})

		w := do(t, s.Handler(), http.MethodGet, "/api/health", nil)
		assert.Len(t, w.Header().Get(requestIDHeader), 36)

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("Should count requests by route template", func(t *testing.T) {
		s, m := newTestServer(&fakePort{})
		do(t, s.Handler(), http.MethodGet, "/api/health", nil)
		do(t, s.Handler(), http.MethodGet, "/api/health", nil)
		do(t, s.Handler(), http.MethodGet, "/nowhere", nil)

		w := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `moneymentor_http_requests_total{method="GET",route="/api/health",status="200"} 2`)
		assert.Contains(t, w.Body.String(), `route="unmatched",status="404"`)
		// health, unmatched and the scrape itself.
		assert.Equal(t, 3, testutil.CollectAndCount(m.Registry(), "moneymentor_http_requests_total"))
	})
}
