package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moneymentor/internal/indexer"
)

func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Chunk, embed and store the processed corpus",
		Long:  `Index reads every .txt file under dir (default: the configured processed directory), splits it into overlapping chunks and upserts their embeddings.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runIndex(ctx, cmd, a, args)
			})
		},
	}
	cmd.Flags().Bool("recreate", false, "Drop the collection before indexing")
	cmd.Flags().Int("chunk-size", 0, "Chunk size in characters (defaults to config)")
	cmd.Flags().Int("chunk-overlap", -1, "Chunk overlap in characters (defaults to config)")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
	req := indexer.Request{CorpusDir: a.cfg.Corpus.ProcessedDir}
	if len(args) == 1 {
		req.CorpusDir = args[0]
	}
	req.Recreate, _ = cmd.Flags().GetBool("recreate")
	if size, _ := cmd.Flags().GetInt("chunk-size"); size > 0 {
		req.ChunkSize = size
	}
	if overlap, _ := cmd.Flags().GetInt("chunk-overlap"); overlap >= 0 {
		req.ChunkOverlap = overlap
		if req.ChunkSize == 0 {
			req.ChunkSize = a.cfg.Chunker.Size
		}
	}

	res, err := a.svc.Index(ctx, req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "Collection:  %s\n", res.Collection)
	fmt.Fprintf(out, "Documents:   %d\n", res.DocumentsProcessed)
	fmt.Fprintf(out, "Chunks:      %d\n", res.ChunksCreated)
	fmt.Fprintf(out, "Vectors:     %d\n", res.VectorsIndexed)
	if !res.Success {
		return fmt.Errorf("indexing failed: %s", res.Error)
	}
	return nil
}
