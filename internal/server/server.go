// Package server exposes the service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
	"moneymentor/internal/metrics"
	"moneymentor/internal/service"
)

// Port is the subset of the service the HTTP layer depends on.
type Port interface {
	Ask(ctx context.Context, req service.AskRequest) (service.Answer, error)
	Retrieve(ctx context.Context, query string, mode domain.Mode, k int) (domain.Retrieval, error)
	Reload(ctx context.Context) (service.ReloadResult, error)
	Info(ctx context.Context) (service.Info, error)
	DefaultMode() domain.Mode
	DefaultK() int
}

type Config struct {
	Addr        string
	ReadTimeout time.Duration
}

type Server struct {
	cfg     Config
	port    Port
	metrics *metrics.Metrics
	engine  *gin.Engine
}

func New(port Port, m *metrics.Metrics, cfg Config, log logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, port: port, metrics: m}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware(log))
	r.Use(LoggerMiddleware())
	r.Use(MetricsMiddleware(m))

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/chat", s.chat)
	api.POST("/retrieve", s.retrieve)
	api.POST("/reload_knowledge", s.reload)
	api.GET("/collection", s.collection)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.FromContext(ctx).Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.FromContext(ctx).Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
