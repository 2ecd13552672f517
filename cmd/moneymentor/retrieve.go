package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"moneymentor/internal/domain"
)

func NewRetrieveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Show the chunks retrieved for a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runRetrieve(ctx, cmd, a, strings.Join(args, " "))
			})
		},
	}
	addRetrievalFlags(cmd)
	return cmd
}

func runRetrieve(ctx context.Context, cmd *cobra.Command, a *app, query string) error {
	mode, k := retrievalFlags(cmd)
	res, err := a.svc.Retrieve(ctx, query, mode, k)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "mode=%s reranked=%t fallback=%t elapsed=%s\n", res.Mode, res.Reranked, res.Fallback, res.Elapsed)
	if res.Diagnostic != "" {
		fmt.Fprintf(out, "diagnostic: %s\n", res.Diagnostic)
	}
	if len(res.Candidates) == 0 {
		fmt.Fprintln(out, "No results")
		return nil
	}
	for i, c := range res.Candidates {
		fmt.Fprintf(out, "%d. [%.4f %s] %s#%d\n   %s\n", i+1, c.Score, c.Origin, c.Chunk.SourceID, c.Chunk.SequenceIndex, oneLine(c.Chunk.Text, 160))
	}
	return nil
}

func retrievalFlags(cmd *cobra.Command) (domain.Mode, int) {
	mode, _ := cmd.Flags().GetString("mode")
	k, _ := cmd.Flags().GetInt("k")
	return domain.Mode(mode), k
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
