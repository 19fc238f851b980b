package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// OllamaLLM implements LLM against a local Ollama server.
type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaLLM reads OLLAMA_HOST from the env, defaulting to
// http://localhost:11434. The default model is llama3.2.
func NewOllamaLLM(model string) (*OllamaLLM, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaLLM{
		Client: ollama.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
		Model:  model,
	}, nil
}

func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	var text strings.Builder
	stream := false
	err := o.Client.Generate(ctx, &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp ollama.GenerateResponse) error {
		text.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}

var _ LLM = (*OllamaLLM)(nil)
