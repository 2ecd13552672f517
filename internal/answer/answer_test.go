package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"moneymentor/internal/domain"
)

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, o := range options {
		o(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func candidates(texts ...string) []domain.Candidate {
	out := make([]domain.Candidate, len(texts))
	for i, t := range texts {
		out[i] = domain.Candidate{
			Chunk: domain.Chunk{SourceID: "doc" + string(rune('a'+i)) + ".txt", SequenceIndex: i, Text: t},
			Score: 1 - float64(i)/10,
			Rank:  i + 1,
		}
	}
	return out
}

func textOf(m llms.MessageContent) string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func TestBuildContext(t *testing.T) {
	t.Run("Should number sources and separate blocks", func(t *testing.T) {
		got := BuildContext(candidates("first chunk", "second chunk"))
		assert.Equal(t, "[Source 1: doca.txt]\nfirst chunk\n\n---\n\n[Source 2: docb.txt]\nsecond chunk", got)
	})

	t.Run("Should render nothing for no candidates", func(t *testing.T) {
		assert.Empty(t, BuildContext(nil))
	})
}

func TestLLM(t *testing.T) {
	t.Run("Should send the context as system prompt and the question as user turn", func(t *testing.T) {
		model := &fakeModel{reply: "  Start with a Roth IRA.  "}
		gen := NewLLM(model, "gpt-4o-mini")

		got, err := gen.Generate(context.Background(), "What is a Roth IRA?", candidates("A Roth IRA grows tax free."))
		require.NoError(t, err)
		assert.Equal(t, "Start with a Roth IRA.", got)
		require.Len(t, model.messages, 2)
		assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Contains(t, textOf(model.messages[0]), "[Source 1: doca.txt]\nA Roth IRA grows tax free.")
		assert.Contains(t, textOf(model.messages[0]), "You are MoneyMentor")
		assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
		assert.Equal(t, "What is a Roth IRA?", textOf(model.messages[1]))
		assert.InDelta(t, 0.7, model.opts.Temperature, 1e-9)
		assert.Equal(t, "gpt-4o-mini", gen.Name())
	})

	t.Run("Should not call the model without context", func(t *testing.T) {
		model := &fakeModel{reply: "unused"}
		got, err := NewLLM(model, "m").Generate(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Equal(t, NoInformation, got)
		assert.Nil(t, model.messages)
	})

	t.Run("Should wrap model errors", func(t *testing.T) {
		model := &fakeModel{err: errors.New("rate limited")}
		_, err := NewLLM(model, "m", WithTemperature(0.2)).Generate(context.Background(), "q", candidates("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
		assert.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
	})

	t.Run("Should require an api key for openai", func(t *testing.T) {
		t.Setenv("MM_TEST_NO_KEY", "")
		_, err := NewOpenAI(OpenAIConfig{APIKeyEnv: "MM_TEST_NO_KEY"})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("Should honour a configured zero temperature", func(t *testing.T) {
		zero := 0.0
		l, err := NewOpenAI(OpenAIConfig{APIKey: "k", Temperature: &zero})
		require.NoError(t, err)
		assert.Zero(t, l.temperature)

		l, err = NewOpenAI(OpenAIConfig{APIKey: "k"})
		require.NoError(t, err)
		assert.InDelta(t, DefaultTemperature, l.temperature, 1e-9)
	})
}

func TestExtractive(t *testing.T) {
	t.Run("Should pick sentences matching the question", func(t *testing.T) {
		gen := NewExtractive(1)
		got, err := gen.Generate(context.Background(), "What is compound interest?", candidates(
			"Budgets help you plan spending. Compound interest is interest earned on interest.",
			"An emergency fund covers three to six months of expenses.",
		))
		require.NoError(t, err)
		assert.Equal(t, "Compound interest is interest earned on interest.", got)
	})

	t.Run("Should keep document order among picked sentences", func(t *testing.T) {
		gen := NewExtractive(2)
		got, err := gen.Generate(context.Background(), "roth ira contributions", candidates(
			"A Roth IRA takes after tax contributions. The weather was nice.",
			"Roth IRA withdrawals in retirement are tax free.",
		))
		require.NoError(t, err)
		assert.Equal(t, "A Roth IRA takes after tax contributions. Roth IRA withdrawals in retirement are tax free.", got)
	})

	t.Run("Should fall back to the neutral message", func(t *testing.T) {
		got, err := NewExtractive(0).Generate(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Equal(t, NoInformation, got)

		got, err = NewExtractive(0).Generate(context.Background(), "q", candidates("the and of."))
		require.NoError(t, err)
		assert.Equal(t, NoInformation, got)
	})
}
