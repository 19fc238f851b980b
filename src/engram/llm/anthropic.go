package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM implements LLM using Anthropic's Messages API.
type AnthropicLLM struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicLLM reads ANTHROPIC_API_KEY from the env. The default
// model is claude-3-5-haiku-latest.
func NewAnthropicLLM(model string) (*AnthropicLLM, error) {
	key, err := requireEnv("ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	return &AnthropicLLM{Client: &cl, Model: model, MaxTokens: 1024}, nil
}

func (a *AnthropicLLM) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}

var _ LLM = (*AnthropicLLM)(nil)
