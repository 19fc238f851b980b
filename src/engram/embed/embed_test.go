package embed

import (
	"context"
	"testing"
)

func TestDummyEmbeddingIsDeterministic(t *testing.T) {
	a := DummyEmbedding("User prefers TypeScript")
	b := DummyEmbedding("User prefers TypeScript")
	if len(a) != DummyDimension || len(b) != DummyDimension {
		t.Fatalf("unexpected dimensions: %d %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
	}
}

func TestDummyEmbeddingDistinguishesInputs(t *testing.T) {
	a := DummyEmbedding("alpha")
	b := DummyEmbedding("omega")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("distinct inputs should produce distinct vectors")
	}
}

func TestDummyEmbedderNeverFails(t *testing.T) {
	vec, err := DummyEmbedder{}.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != DummyDimension {
		t.Fatalf("unexpected dimension %d", len(vec))
	}
}

func TestAutoEmbedderFallsBackToDummy(t *testing.T) {
	t.Setenv("ENGRAM_EMBED_PROVIDER", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected dummy fallback without provider config")
	}
}
