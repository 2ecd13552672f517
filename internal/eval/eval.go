// Package eval scores answers against a golden set with simple binary
// metrics, per retrieval mode.
package eval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"moneymentor/internal/domain"
	"moneymentor/internal/logger"
	"moneymentor/internal/service"
)

// Example is one golden set line.
type Example struct {
	Query          string `json:"query"`
	ExpectedAnswer string `json:"expected_answer"`
}

// LoadGolden reads a JSONL golden set, skipping blank lines.
func LoadGolden(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	defer f.Close()
	var out []Example
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var ex Example
		if err := json.Unmarshal([]byte(raw), &ex); err != nil {
			return nil, fmt.Errorf("eval: %s:%d: %w", path, line, err)
		}
		if strings.TrimSpace(ex.Query) == "" {
			return nil, fmt.Errorf("eval: %s:%d: empty query", path, line)
		}
		out = append(out, ex)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return out, nil
}

type Scores struct {
	Faithfulness     float64 `json:"faithfulness"`
	AnswerRelevancy  float64 `json:"answer_relevancy"`
	ContextPrecision float64 `json:"context_precision"`
	ContextRecall    float64 `json:"context_recall"`
}

func binary(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// Score computes the four binary metrics. Matching is case-insensitive
// substring containment; precision and recall coincide for this scorer.
func Score(query, answer, expected string, contexts []string) Scores {
	a := strings.ToLower(answer)
	e := strings.ToLower(expected)
	ctx := strings.ToLower(strings.Join(contexts, " "))
	relevant := false
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(a, w) {
			relevant = true
			break
		}
	}
	inContext := strings.Contains(ctx, e)
	return Scores{
		Faithfulness:     binary(strings.Contains(a, e)),
		AnswerRelevancy:  binary(relevant),
		ContextPrecision: binary(inContext),
		ContextRecall:    binary(inContext),
	}
}

type Asker interface {
	Ask(ctx context.Context, req service.AskRequest) (service.Answer, error)
}

type CaseResult struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
	Tool   string `json:"tool"`
	Error  string `json:"error,omitempty"`
	Scores Scores `json:"scores"`
}

type Report struct {
	Mode    domain.Mode  `json:"mode"`
	Cases   []CaseResult `json:"cases"`
	Average Scores       `json:"average"`
}

// Options for Run. Parallelism bounds concurrent Ask calls per mode.
type Options struct {
	Modes       []domain.Mode
	K           int
	Parallelism int
}

// Run asks every example in each mode and averages the scores. A failed Ask
// scores zero and is recorded on its case rather than aborting the run.
func Run(ctx context.Context, asker Asker, examples []Example, opts Options) ([]Report, error) {
	if len(opts.Modes) == 0 {
		opts.Modes = []domain.Mode{domain.ModeFast, domain.ModeQuality}
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	log := logger.FromContext(ctx)
	reports := make([]Report, 0, len(opts.Modes))
	for _, mode := range opts.Modes {
		cases := make([]CaseResult, len(examples))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallelism)
		for i, ex := range examples {
			g.Go(func() error {
				ans, err := asker.Ask(gctx, service.AskRequest{Question: ex.Query, K: opts.K, Mode: mode})
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					cases[i] = CaseResult{Query: ex.Query, Error: err.Error()}
					return nil
				}
				contexts := ans.Contexts
				if len(contexts) == 0 {
					for _, s := range ans.Sources {
						contexts = append(contexts, s.Text)
					}
				}
				cases[i] = CaseResult{
					Query:  ex.Query,
					Answer: ans.Answer,
					Tool:   ans.Tool,
					Scores: Score(ex.Query, ans.Answer, ex.ExpectedAnswer, contexts),
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return reports, fmt.Errorf("eval: mode %s: %w", mode, err)
		}
		r := Report{Mode: mode, Cases: cases, Average: average(cases)}
		log.Info("Evaluation finished", "mode", mode, "cases", len(cases),
			"faithfulness", r.Average.Faithfulness, "context_recall", r.Average.ContextRecall)
		reports = append(reports, r)
	}
	return reports, nil
}

func average(cases []CaseResult) Scores {
	var s Scores
	if len(cases) == 0 {
		return s
	}
	for _, c := range cases {
		s.Faithfulness += c.Scores.Faithfulness
		s.AnswerRelevancy += c.Scores.AnswerRelevancy
		s.ContextPrecision += c.Scores.ContextPrecision
		s.ContextRecall += c.Scores.ContextRecall
	}
	n := float64(len(cases))
	s.Faithfulness /= n
	s.AnswerRelevancy /= n
	s.ContextPrecision /= n
	s.ContextRecall /= n
	return s
}
