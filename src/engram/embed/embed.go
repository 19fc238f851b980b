// Package embed provides pluggable text-embedding providers. Embedding
// is an optional capability: every consumer degrades to keyword-only
// scoring when a provider fails.
package embed

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// DummyDimension is the vector width of the deterministic fallback.
const DummyDimension = 768

// DummyEmbedder produces deterministic embeddings without network
// access; useful for tests and offline runs.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding folds bytes into a fixed-width vector.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, DummyDimension)
	for i, ch := range []byte(text) {
		vec[i%DummyDimension] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// ENGRAM_EMBED_PROVIDER=openai|gemini|ollama|voyage|fastembed
// ENGRAM_EMBED_MODEL=<model string>
// Unset or unavailable providers fall back to the dummy.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("ENGRAM_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("ENGRAM_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini":
		if e, err := NewGeminiEmbedder(context.Background(), model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "claude", "anthropic":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbedder(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}
