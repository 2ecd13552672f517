package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moneymentor/internal/domain"
	"moneymentor/internal/eval"
)

func NewEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <golden.jsonl>",
		Short: "Score both retrieval modes against a golden question set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runEval(ctx, cmd, a, args[0])
			})
		},
	}
	cmd.Flags().StringSlice("modes", []string{"fast", "quality"}, "Retrieval modes to evaluate")
	cmd.Flags().IntP("k", "k", 0, "Chunks per question (defaults to config)")
	cmd.Flags().Int("parallel", 4, "Concurrent questions per mode")
	return cmd
}

func runEval(ctx context.Context, cmd *cobra.Command, a *app, path string) error {
	examples, err := eval.LoadGolden(path)
	if err != nil {
		return err
	}
	names, _ := cmd.Flags().GetStringSlice("modes")
	modes := make([]domain.Mode, 0, len(names))
	for _, name := range names {
		m, err := domain.ParseMode(name)
		if err != nil {
			return err
		}
		modes = append(modes, m)
	}
	k, _ := cmd.Flags().GetInt("k")
	parallel, _ := cmd.Flags().GetInt("parallel")

	reports, err := eval.Run(ctx, a.svc, examples, eval.Options{Modes: modes, K: k, Parallelism: parallel})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	fmt.Fprintf(out, "%-8s %12s %12s %12s %12s\n", "mode", "faithful", "relevancy", "precision", "recall")
	for _, r := range reports {
		fmt.Fprintf(out, "%-8s %12.3f %12.3f %12.3f %12.3f\n", r.Mode,
			r.Average.Faithfulness, r.Average.AnswerRelevancy, r.Average.ContextPrecision, r.Average.ContextRecall)
	}
	for _, r := range reports {
		for _, c := range r.Cases {
			if c.Error != "" {
				fmt.Fprintf(out, "%s: %q failed: %s\n", r.Mode, c.Query, c.Error)
			}
		}
	}
	return nil
}
