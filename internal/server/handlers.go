package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"moneymentor/internal/domain"
	"moneymentor/internal/service"
)

type chatRequest struct {
	Question string `json:"question" binding:"required,min=1,max=1000"`
	K        int    `json:"k"        binding:"omitempty,min=1,max=20"`
	Mode     string `json:"mode"     binding:"omitempty,oneof=fast quality"`
}

type retrieveRequest struct {
	Query string `json:"query" binding:"required,min=1,max=1000"`
	K     int    `json:"k"     binding:"omitempty,min=1,max=20"`
	Mode  string `json:"mode"  binding:"omitempty,oneof=fast quality"`
}

type retrievedChunk struct {
	Rank    int     `json:"rank"`
	Score   float64 `json:"score"`
	Origin  string  `json:"origin"`
	Source  string  `json:"source"`
	ChunkID int     `json:"chunk_id"`
	Text    string  `json:"text"`
}

type retrieveResponse struct {
	Query      string           `json:"query"`
	Mode       domain.Mode      `json:"mode"`
	Reranked   bool             `json:"reranked"`
	Fallback   bool             `json:"fallback"`
	Diagnostic string           `json:"diagnostic,omitempty"`
	ElapsedMS  int64            `json:"elapsed_ms"`
	Results    []retrievedChunk `json:"results"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	ans, err := s.port.Ask(c.Request.Context(), service.AskRequest{
		Question: req.Question,
		K:        s.orDefaultK(req.K),
		Mode:     domain.Mode(req.Mode),
	})
	if err != nil {
		s.fail(c, "Error processing question: ", err)
		return
	}
	c.JSON(http.StatusOK, ans)
}

func (s *Server) retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	ret, err := s.port.Retrieve(c.Request.Context(), req.Query, domain.Mode(req.Mode), s.orDefaultK(req.K))
	if err != nil {
		s.fail(c, "Error retrieving: ", err)
		return
	}
	out := retrieveResponse{
		Query:      ret.Query,
		Mode:       ret.Mode,
		Reranked:   ret.Reranked,
		Fallback:   ret.Fallback,
		Diagnostic: ret.Diagnostic,
		ElapsedMS:  ret.Elapsed.Milliseconds(),
		Results:    make([]retrievedChunk, len(ret.Candidates)),
	}
	for i, cand := range ret.Candidates {
		out.Results[i] = retrievedChunk{
			Rank:    cand.Rank,
			Score:   cand.Score,
			Origin:  string(cand.Origin),
			Source:  cand.Chunk.SourceID,
			ChunkID: cand.Chunk.SequenceIndex,
			Text:    cand.Chunk.Text,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) reload(c *gin.Context) {
	res, err := s.port.Reload(c.Request.Context())
	if err != nil {
		s.fail(c, "Error reloading knowledge base: ", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) collection(c *gin.Context) {
	info, err := s.port.Info(c.Request.Context())
	if err != nil {
		s.fail(c, "Error reading collection: ", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) orDefaultK(k int) int {
	if k == 0 {
		return s.port.DefaultK()
	}
	return k
}

func (s *Server) fail(c *gin.Context, prefix string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrUnknownMode):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConnectivity):
		status = http.StatusBadGateway
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"detail": prefix + err.Error()})
}
