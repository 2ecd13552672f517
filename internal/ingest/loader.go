// Package ingest turns source files into normalised plain-text documents.
package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"moneymentor/internal/logger"
)

var supported = map[string]struct{}{".txt": {}, ".md": {}, ".pdf": {}}

// Loader reads every supported file of one directory. Subdirectories are not
// visited.
type Loader struct{}

func NewLoader() *Loader { return &Loader{} }

// Load returns documents ordered by file name. A missing directory is an
// error, an empty one is not. Files that cannot be extracted are logged and
// skipped.
func (l *Loader) Load(ctx context.Context, dir string) ([]Document, error) {
	log := logger.FromContext(ctx)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := supported[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			log.Debug("Skipping unsupported file", "file", e.Name())
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		text, err := extract(path)
		if err != nil {
			log.Error("Extraction failed, skipping", "file", name, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Warn("No text extracted, skipping", "file", name)
			continue
		}
		docs = append(docs, Document{ID: hashString(path), Path: path, Source: name, Content: text})
		log.Debug("Loaded document", "file", name, "chars", utf8.RuneCountInString(text))
	}
	log.Info("Documents loaded", "dir", dir, "count", len(docs))
	return docs, nil
}

func extract(path string) (string, error) {
	kind, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("ingest: detect %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case kind.Is("application/pdf"):
		return extractPDF(path)
	case ext == ".pdf":
		return "", fmt.Errorf("ingest: %s has a .pdf extension but looks like %s", path, kind.String())
	case strings.HasPrefix(kind.String(), "text/") || kind.Is("application/octet-stream"):
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ingest: read %s: %w", path, err)
		}
		return Normalize(string(data)), nil
	default:
		return "", fmt.Errorf("ingest: %s is %s, not text", path, kind.String())
	}
}

// extractPDF joins the plain text of every non-empty page with a blank line.
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf %s: %w", path, err)
	}
	defer f.Close()
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("ingest: pdf %s page %d: %w", path, i, err)
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return Normalize(strings.Join(pages, "\n\n")), nil
}

// Normalize makes text valid UTF-8 with \n line endings.
func Normalize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
