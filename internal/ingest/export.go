package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
)

type Document = domain.Document

// Export writes each document as <stem>.txt into outDir and returns the
// written paths. The processed directory is what the indexer reads, so .txt
// files left there by an earlier export are removed first. Documents whose
// stems collide (guide.pdf, guide.txt) keep their extension in the name:
// guide_pdf.txt, guide_txt.txt.
func Export(ctx context.Context, docs []Document, outDir string) ([]string, error) {
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: resolve %s: %w", outDir, err)
	}
	for _, d := range docs {
		if d.Path == "" {
			continue
		}
		if dir, err := filepath.Abs(filepath.Dir(d.Path)); err == nil && dir == absOut {
			return nil, fmt.Errorf("%w: processed dir %s is the source dir", domain.ErrConfiguration, outDir)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: create %s: %w", outDir, err)
	}
	removed, err := pruneText(outDir)
	if err != nil {
		return nil, err
	}

	stems := make(map[string]int, len(docs))
	for _, d := range docs {
		stems[stem(d.Source)]++
	}
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		name := stem(d.Source)
		if stems[name] > 1 {
			name += "_" + strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Source)), ".")
		}
		out := filepath.Join(outDir, name+".txt")
		if err := os.WriteFile(out, []byte(d.Content), 0o644); err != nil {
			return paths, fmt.Errorf("ingest: write %s: %w", out, err)
		}
		paths = append(paths, out)
	}
	logger.FromContext(ctx).Info("Processed text exported", "dir", outDir, "files", len(paths), "removed", removed)
	return paths, nil
}

func stem(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source))
}

func pruneText(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("ingest: read dir %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return n, fmt.Errorf("ingest: remove stale %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}
