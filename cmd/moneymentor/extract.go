package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"moneymentor/internal/ingest"
)

func NewExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [source-dir] [out-dir]",
		Short: "Extract text from PDF, markdown and text files",
		Long:  `Extract writes one normalised .txt file per supported source document into the processed directory.`,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			src, dst := cfg.Corpus.SourceDir, cfg.Corpus.ProcessedDir
			if len(args) > 0 {
				src = args[0]
			}
			if len(args) > 1 {
				dst = args[1]
			}
			return runExtract(cmd.Context(), cmd, src, dst)
		},
	}
}

func runExtract(ctx context.Context, cmd *cobra.Command, src, dst string) error {
	docs, err := ingest.NewLoader().Load(ctx, src)
	if err != nil {
		return err
	}
	written, err := ingest.Export(ctx, docs, dst)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return json.NewEncoder(out).Encode(map[string]any{"source": src, "output": dst, "files": written})
	}
	if len(written) == 0 {
		fmt.Fprintf(out, "No supported files found in %s\n", src)
		return nil
	}
	for _, f := range written {
		fmt.Fprintln(out, f)
	}
	fmt.Fprintf(out, "Extracted %d document(s) into %s\n", len(written), dst)
	return nil
}
