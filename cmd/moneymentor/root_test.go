package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneymentor/internal/config"
	"moneymentor/internal/domain"
	"moneymentor/internal/service"
)

// testConfig writes an offline configuration (hashing embedder, in-memory
// store, no reranker, extractive answers) and returns its path.
func testConfig(t *testing.T) (string, string) {
	t.Helper()
	t.Setenv("MONEYMENTOR_VECTOR_STORE", "")
	t.Setenv("MONEYMENTOR_EMBEDDER", "")
	dir := t.TempDir()
	src := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(src, 0o755))
	files := map[string]string{
		"roth_ira.txt": "A Roth IRA is funded with after-tax dollars.\nQualified withdrawals in retirement are tax free.",
		"budget.md":    "# Budgeting\nThe 50/30/20 rule splits income into needs, wants and savings.",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(src, name), []byte(body), 0o644))
	}

	cfg := config.Default()
	cfg.Embedder.Type = "hashing"
	cfg.Embedder.HashingDimension = 128
	cfg.VectorStore.Type = "memory"
	cfg.Reranker.Type = "none"
	cfg.Generator.Type = "extractive"
	cfg.WebSearch.Type = "none"
	cfg.Chunker.Size = 200
	cfg.Chunker.Overlap = 20
	cfg.Indexer.EmbedPauseMillis = 0
	cfg.Corpus.SourceDir = src
	cfg.Corpus.ProcessedDir = filepath.Join(dir, "processed")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd(t *testing.T) {
	t.Run("Should register persistent flags", func(t *testing.T) {
		cmd := NewRootCmd("test")
		for _, name := range []string{"config", "log-level", "log-json", "log-source", "json"} {
			assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
		}
	})

	t.Run("Should register every subcommand", func(t *testing.T) {
		cmd := NewRootCmd("test")
		var names []string
		for _, c := range cmd.Commands() {
			names = append(names, c.Name())
		}
		for _, want := range []string{"index", "extract", "retrieve", "ask", "serve", "tui", "eval", "info"} {
			assert.Contains(t, names, want)
		}
	})

	t.Run("Should reject an invalid config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("chunker:\n  chunk_size: 10\n  chunk_overlap: 50\n"), 0o644))
		_, err := execute(t, "--config", path, "ask", "what is a roth ira")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestExtractAndIndex(t *testing.T) {
	t.Run("Should extract source documents into text files", func(t *testing.T) {
		path, dir := testConfig(t)
		out, err := execute(t, "--config", path, "extract")
		require.NoError(t, err)
		assert.Contains(t, out, "Extracted 2 document(s)")
		assert.FileExists(t, filepath.Join(dir, "processed", "roth_ira.txt"))
		assert.FileExists(t, filepath.Join(dir, "processed", "budget.txt"))
	})

	t.Run("Should index a directory and report counts", func(t *testing.T) {
		path, dir := testConfig(t)
		_, err := execute(t, "--config", path, "extract")
		require.NoError(t, err)

		out, err := execute(t, "--config", path, "--json", "index", filepath.Join(dir, "processed"))
		require.NoError(t, err)
		var res domain.IndexResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.True(t, res.Success)
		assert.Equal(t, 2, res.DocumentsProcessed)
		assert.Equal(t, res.ChunksCreated, res.VectorsIndexed)
	})

	t.Run("Should index nothing from an empty directory", func(t *testing.T) {
		path, _ := testConfig(t)
		out, err := execute(t, "--config", path, "index", t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, out, "Vectors:     0")
	})
}

func TestAskCmd(t *testing.T) {
	t.Run("Should answer a growth question with the calculator", func(t *testing.T) {
		path, _ := testConfig(t)
		out, err := execute(t, "--config", path, "ask", "If I invest $500 monthly at 7% for 20 years, how much will I have?")
		require.NoError(t, err)
		assert.Contains(t, out, "Final value: $260,463.33")
		assert.Contains(t, out, "tool=calculator")
	})

	t.Run("Should emit JSON answers", func(t *testing.T) {
		path, _ := testConfig(t)
		out, err := execute(t, "--config", path, "--json", "ask", "What is a Roth IRA?")
		require.NoError(t, err)
		var ans service.Answer
		require.NoError(t, json.Unmarshal([]byte(out), &ans))
		assert.Equal(t, service.ToolRAG, ans.Tool)
		assert.Equal(t, domain.ModeQuality, ans.Mode)
		assert.Equal(t, "extractive", ans.Model)
	})

	t.Run("Should reject an unknown mode", func(t *testing.T) {
		path, _ := testConfig(t)
		_, err := execute(t, "--config", path, "ask", "--mode", "slow", "What is a Roth IRA?")
		assert.ErrorIs(t, err, domain.ErrUnknownMode)
	})
}

func TestEvalCmd(t *testing.T) {
	t.Run("Should print an average row per mode", func(t *testing.T) {
		path, dir := testConfig(t)
		golden := filepath.Join(dir, "golden.jsonl")
		line := `{"query":"If I invest $500 monthly at 7% for 20 years?","expected_answer":"about $260,463"}` + "\n"
		require.NoError(t, os.WriteFile(golden, []byte(line), 0o644))

		out, err := execute(t, "--config", path, "eval", golden)
		require.NoError(t, err)
		assert.Contains(t, out, "faithful")
		assert.Contains(t, out, "fast")
		assert.Contains(t, out, "quality")
	})

	t.Run("Should fail on a missing golden file", func(t *testing.T) {
		path, dir := testConfig(t)
		_, err := execute(t, "--config", path, "eval", filepath.Join(dir, "missing.jsonl"))
		assert.Error(t, err)
	})
}
