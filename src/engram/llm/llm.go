// Package llm provides the language-model collaborator used by fact
// extraction, with adapters for OpenAI, Anthropic, Gemini and Ollama.
package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// LLM is a pluggable single-turn text-generation provider.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the LLM interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// DummyLLM is a lightweight implementation useful for local testing
// without API calls. It answers with Response when that is set and
// with an empty candidate array otherwise, so extraction runs
// end-to-end without network access.
type DummyLLM struct {
	Response string
}

func (d *DummyLLM) Generate(_ context.Context, _ string) (string, error) {
	if d.Response != "" {
		return d.Response, nil
	}
	return "[]", nil
}

var _ LLM = (*DummyLLM)(nil)

// AutoLLM chooses a provider from env:
// ENGRAM_LLM_PROVIDER=openai|anthropic|gemini|ollama
// ENGRAM_LLM_MODEL=<model string>
// Unset or unavailable providers fall back to the dummy.
func AutoLLM() LLM {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("ENGRAM_LLM_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("ENGRAM_LLM_MODEL"))

	switch provider {
	case "openai":
		if m, err := NewOpenAILLM(model); err == nil {
			return m
		}
	case "anthropic", "claude":
		if m, err := NewAnthropicLLM(model); err == nil {
			return m
		}
	case "google", "gemini":
		if m, err := NewGeminiLLM(context.Background(), model); err == nil {
			return m
		}
	case "ollama":
		if m, err := NewOllamaLLM(model); err == nil {
			return m
		}
	}

	log.Printf("AutoLLM: falling back to DummyLLM")
	return &DummyLLM{}
}

func requireEnv(names ...string) (string, error) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("missing %s", strings.Join(names, " or "))
}
