package llm

import (
	"context"
	"errors"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiLLM implements LLM using Google's Gemini API.
type GeminiLLM struct {
	Client *genai.Client
	Model  string
}

// NewGeminiLLM reads GOOGLE_API_KEY or GEMINI_API_KEY from the env.
// The default model is gemini-2.0-flash.
func NewGeminiLLM(ctx context.Context, model string) (*GeminiLLM, error) {
	apiKey, err := requireEnv("GOOGLE_API_KEY", "GEMINI_API_KEY")
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiLLM{Client: client, Model: model}, nil
}

func (g *GeminiLLM) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.Client.GenerativeModel(g.Model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}

// Close releases the underlying client.
func (g *GeminiLLM) Close() error { return g.Client.Close() }

var _ LLM = (*GeminiLLM)(nil)
