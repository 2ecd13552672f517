// Package websearch describes live web lookups used when a question depends
// on current figures, such as today's savings rates.
package websearch

import (
	"context"
	"strings"
)

type Result struct {
	Title   string
	URL     string
	Content string
	Score   float64
}

// Response holds the provider's short answer, when it produced one, and the
// top results.
type Response struct {
	Answer  string
	Results []Result
}

type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) (Response, error)
}

// Summary renders at most maxResults results, each content clipped to
// perResult runes.
func Summary(r Response, maxResults, perResult int) string {
	var parts []string
	if a := strings.TrimSpace(r.Answer); a != "" {
		parts = append(parts, a)
	}
	for i, res := range r.Results {
		if i == maxResults {
			break
		}
		content := []rune(strings.Join(strings.Fields(res.Content), " "))
		if len(content) > perResult {
			content = append(content[:perResult], []rune("...")...)
		}
		line := string(content)
		if res.URL != "" {
			line += " (" + res.URL + ")"
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n\n")
}
