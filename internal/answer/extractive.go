package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"moneymentor/internal/domain"
	"moneymentor/internal/tokenize"
)

var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)

// Extractive answers by quoting the most informative sentences of the
// retrieved chunks. It needs no model and is deterministic.
type Extractive struct {
	maxSentences int
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{maxSentences: maxSentences}
}

func (e *Extractive) Name() string { return "extractive" }

type sentence struct {
	text  string
	order int
	score float64
}

// Generate ranks sentences by normalised term frequency across the chunks,
// doubling the weight of terms that appear in the question.
func (e *Extractive) Generate(_ context.Context, question string, candidates []domain.Candidate) (string, error) {
	if len(candidates) == 0 {
		return NoInformation, nil
	}
	var sentences []sentence
	seen := map[string]struct{}{}
	for _, c := range candidates {
		for _, raw := range sentencePattern.FindAllString(c.Chunk.Text, -1) {
			s := strings.TrimSpace(raw)
			if len(tokenize.Terms(s)) == 0 {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			sentences = append(sentences, sentence{text: s, order: len(sentences)})
		}
	}
	if len(sentences) == 0 {
		return NoInformation, nil
	}

	freq := map[string]float64{}
	for _, s := range sentences {
		for _, t := range tokenize.Terms(s.text) {
			freq[t]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	asked := tokenize.TermSet(question)
	for i := range sentences {
		terms := tokenize.Terms(sentences[i].text)
		score := 0.0
		for _, t := range terms {
			w := freq[t] / maxF
			if _, ok := asked[t]; ok {
				w *= 2
			}
			score += w
		}
		sentences[i].score = score / math.Sqrt(float64(len(terms)))
	}

	sort.SliceStable(sentences, func(i, j int) bool { return sentences[i].score > sentences[j].score })
	n := min(e.maxSentences, len(sentences))
	picked := sentences[:n]
	sort.Slice(picked, func(i, j int) bool { return picked[i].order < picked[j].order })
	out := make([]string, n)
	for i, s := range picked {
		out[i] = s.text
	}
	return strings.Join(out, " "), nil
}
