package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"moneymentor/internal/domain"
)

const (
	DefaultChatModel   = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

const systemPrompt = `You are MoneyMentor, a knowledgeable and friendly financial advisor assistant.
Your role is to provide clear, accurate, and helpful financial advice based on the provided context.

Guidelines:
- Use the context below to answer questions accurately
- Provide practical, actionable advice when appropriate
- If the context doesn't contain enough information, say so honestly
- Use a warm, professional, and encouraging tone
- Break down complex concepts into easy-to-understand explanations

Context from knowledge base:
%s

Remember: You are MoneyMentor, here to help people make informed financial decisions.`

// LLM generates answers with a chat model.
type LLM struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

type LLMOption func(*LLM)

func WithTemperature(t float64) LLMOption { return func(l *LLM) { l.temperature = t } }

func WithMaxTokens(n int) LLMOption { return func(l *LLM) { l.maxTokens = n } }

func NewLLM(model llms.Model, name string, opts ...LLMOption) *LLM {
	l := &LLM{model: model, name: name, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OpenAIConfig configures the OpenAI chat provider.
type OpenAIConfig struct {
	BaseURL     string
	APIKeyEnv   string
	APIKey      string
	Model       string
	// Temperature nil uses DefaultTemperature.
	Temperature *float64
}

// NewOpenAI builds an LLM generator backed by an OpenAI-compatible endpoint.
func NewOpenAI(cfg OpenAIConfig) (*LLM, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: openai chat: %v", domain.ErrConfiguration, err)
	}
	var lopts []LLMOption
	if cfg.Temperature != nil {
		lopts = append(lopts, WithTemperature(*cfg.Temperature))
	}
	return NewLLM(model, cfg.Model, lopts...), nil
}

func (l *LLM) Name() string { return l.name }

func (l *LLM) Generate(ctx context.Context, question string, candidates []domain.Candidate) (string, error) {
	if len(candidates) == 0 {
		return NoInformation, nil
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, fmt.Sprintf(systemPrompt, BuildContext(candidates))),
		llms.TextParts(llms.ChatMessageTypeHuman, question),
	}
	options := []llms.CallOption{llms.WithTemperature(l.temperature)}
	if l.maxTokens > 0 {
		options = append(options, llms.WithMaxTokens(l.maxTokens))
	}
	resp, err := l.model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("answer: generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("answer: generate: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
