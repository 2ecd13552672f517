package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"moneymentor/internal/service"
)

func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a financial question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runAsk(ctx, cmd, a, strings.Join(args, " "))
			})
		},
	}
	addRetrievalFlags(cmd)
	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, a *app, question string) error {
	mode, k := retrievalFlags(cmd)
	ans, err := a.svc.Ask(ctx, service.AskRequest{Question: question, K: k, Mode: mode})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	fmt.Fprintln(out, ans.Answer)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "tool=%s model=%s", ans.Tool, ans.Model)
	if ans.Mode != "" {
		fmt.Fprintf(out, " mode=%s", ans.Mode)
	}
	fmt.Fprintln(out)
	for i, src := range ans.Sources {
		fmt.Fprintf(out, "[%d] %s#%d (%.3f)\n", i+1, src.Source, src.ChunkID, src.Score)
	}
	return nil
}
