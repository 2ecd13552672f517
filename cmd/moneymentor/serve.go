package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"moneymentor/internal/logger"
	"moneymentor/internal/server"
)

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat, retrieve and reload endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runServe(ctx, cmd, a)
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address (defaults to config server.addr)")
	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, a *app) error {
	log := logger.FromContext(ctx)
	// An unreachable store is not fatal at startup; the retrieval path is
	// rebuilt lazily on the first query.
	if n, err := a.svc.Rebuild(ctx); err != nil {
		log.Warn("Initial index load failed", "error", err)
	} else {
		log.Info("Lexical index loaded", "chunks", n)
	}
	addr := a.cfg.Server.Addr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}
	srv := server.New(a.svc, a.metrics, server.Config{
		Addr:        addr,
		ReadTimeout: time.Duration(a.cfg.Server.ReadTimeoutSecs) * time.Second,
	}, log)
	return srv.Run(ctx)
}
