package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"moneymentor/internal/logger"
	"moneymentor/internal/tui"
)

func NewTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive question answering in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runTUI(ctx, cmd, a)
			})
		},
	}
	addRetrievalFlags(cmd)
	return cmd
}

func runTUI(ctx context.Context, cmd *cobra.Command, a *app) error {
	n, err := a.svc.Rebuild(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("Initial index load failed", "error", err)
	}
	mode, k := retrievalFlags(cmd)
	if mode == "" {
		mode = a.svc.DefaultMode()
	}
	if k <= 0 {
		k = a.svc.DefaultK()
	}
	summary := fmt.Sprintf("collection=%s chunks=%d config=%s", a.cfg.VectorStore.Collection, n, a.cfgPath)
	p := tea.NewProgram(tui.New(ctx, a.svc, mode, k, summary), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
