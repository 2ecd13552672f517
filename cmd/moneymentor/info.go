package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moneymentor/internal/logger"
)

func NewInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the configured collection and components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.svc.Rebuild(ctx); err != nil {
					logger.FromContext(ctx).Warn("Lexical index unavailable", "error", err)
				}
				info, err := a.svc.Info(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(info)
				}
				fmt.Fprintf(out, "Config:      %s\n", a.cfgPath)
				fmt.Fprintf(out, "Collection:  %s (%s)\n", info.Collection.Name, info.Collection.Status)
				fmt.Fprintf(out, "Vectors:     %d x %d (%s)\n", info.Collection.PointsCount, info.Collection.VectorSize, info.Collection.Distance)
				fmt.Fprintf(out, "Lexical:     %d chunks\n", info.LexicalChunks)
				fmt.Fprintf(out, "Embedder:    %s (%d)\n", info.Embedder, info.Dimension)
				fmt.Fprintf(out, "Generator:   %s\n", info.Generator)
				fmt.Fprintf(out, "Mode:        %s\n", info.DefaultMode)
				return nil
			})
		},
	}
}
