package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAILLM implements LLM using OpenAI's chat completions API.
type OpenAILLM struct {
	Client *openai.Client
	Model  string
}

// NewOpenAILLM reads OPENAI_API_KEY from the env. The default model is
// gpt-4o-mini.
func NewOpenAILLM(model string) (*OpenAILLM, error) {
	apiKey, err := requireEnv("OPENAI_API_KEY")
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAILLM{Client: openai.NewClient(apiKey), Model: model}, nil
}

func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

var _ LLM = (*OpenAILLM)(nil)
