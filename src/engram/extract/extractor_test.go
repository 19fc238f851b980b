package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/engram/src/engram/llm"
	"github.com/Protocol-Lattice/engram/src/engram/model"
)

type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	idx := s.calls
	s.calls++
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "[]", nil
}

var _ llm.LLM = (*scriptedLLM)(nil)

func TestExtractParsesBareArray(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		`[{"content": "User prefers TypeScript", "category": "preference"}]`,
	}}
	got, err := New(m, nil).Extract(context.Background(), []Message{{Role: "user", Content: "I prefer TypeScript"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Content != "User prefers TypeScript" || got[0].Category != "preference" {
		t.Fatalf("unexpected candidates: %#v", got)
	}
	if m.calls != 1 {
		t.Fatalf("expected a single model call, got %d", m.calls)
	}
}

func TestExtractToleratesFencesAndProse(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		"Here are the facts:\n```json\n[{\"content\": \"User ships on Vercel\", \"category\": \"skill\"}]\n```",
	}}
	got, err := New(m, nil).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Category != "skill" {
		t.Fatalf("unexpected candidates: %#v", got)
	}
}

func TestExtractUnknownCategoryCollapsesToFact(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		`[{"content": "Something happened", "category": "mystery"}]`,
	}}
	got, err := New(m, nil).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Category != model.DefaultCategory {
		t.Fatalf("expected fallback to %q, got %q", model.DefaultCategory, got[0].Category)
	}
}

func TestExtractTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("x", 600)
	m := &scriptedLLM{responses: []string{
		`[{"content": "` + long + `", "category": "fact"}]`,
	}}
	got, err := New(m, nil).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got[0].Content) != model.MaxContentLength {
		t.Fatalf("expected truncation to %d, got %d", model.MaxContentLength, len(got[0].Content))
	}
}

func TestExtractEmptyArrayMeansNothingToKeep(t *testing.T) {
	m := &scriptedLLM{responses: []string{"[]"}}
	got, err := New(m, nil).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %#v", got)
	}
	if m.calls != 1 {
		t.Fatalf("literal [] must not trigger a retry, got %d calls", m.calls)
	}
}

func TestExtractRetriesOnceWithStricterPrompt(t *testing.T) {
	m := &scriptedLLM{responses: []string{
		"I could not find any structured facts.",
		`[{"content": "User lives in Warsaw", "category": "fact"}]`,
	}}
	got, err := New(m, nil).Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one candidate after retry, got %#v", got)
	}
	if m.calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", m.calls)
	}
	if !strings.Contains(m.prompts[1], "ONLY the JSON array") {
		t.Fatal("expected the retry prompt to be stricter")
	}
}

func TestExtractFailsAfterRetry(t *testing.T) {
	m := &scriptedLLM{responses: []string{"garbage", "still garbage"}}
	_, err := New(m, nil).Extract(context.Background(), nil)
	if !model.IsKind(err, model.KindExtraction) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
	if m.calls != 2 {
		t.Fatalf("expected two calls, got %d", m.calls)
	}
}

func TestExtractModelErrorIsFatal(t *testing.T) {
	m := &scriptedLLM{errs: []error{errors.New("rate limited")}}
	_, err := New(m, nil).Extract(context.Background(), nil)
	if !model.IsKind(err, model.KindExtraction) {
		t.Fatalf("expected extraction_failed, got %v", err)
	}
}

func TestExtractWithoutModel(t *testing.T) {
	_, err := New(nil, nil).Extract(context.Background(), nil)
	if !model.IsKind(err, model.KindNoLLM) {
		t.Fatalf("expected no_llm, got %v", err)
	}
}

func TestPromptCarriesCategoriesAndTranscript(t *testing.T) {
	m := &scriptedLLM{responses: []string{"[]"}}
	ex := New(m, []string{"fact", "ritual"})
	_, err := ex.Extract(context.Background(), []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prompt := m.prompts[0]
	for _, want := range []string{"- fact:", "- ritual:", "user: hello", "assistant: hi there"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestExtractArrayFindsFirstBalancedArray(t *testing.T) {
	body, ok := extractArray(`noise ["a]","b"] trailing ["c"]`)
	if !ok {
		t.Fatal("expected to find an array")
	}
	if body != `["a]","b"]` {
		t.Fatalf("unexpected array body %q", body)
	}
}
