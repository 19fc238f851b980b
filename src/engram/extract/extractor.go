// Package extract turns a conversation transcript into candidate facts
// via the language-model collaborator.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/engram/src/engram/llm"
	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Message is one turn of the conversation handed to Remember.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CategoryDescriptions provides the human-readable gloss the extraction
// prompt shows per category. Unknown categories get a generic line.
var CategoryDescriptions = map[string]string{
	"fact":       "a stable fact about the user or their world",
	"preference": "something the user likes, dislikes, or prefers",
	"skill":      "an ability, workflow, or tool competence the user has",
	"episode":    "a discrete event that happened, with temporal context",
	"context":    "ambient situational detail worth keeping short-term",
}

// Extractor drives the LLM collaborator and parses its output.
type Extractor struct {
	LLM        llm.LLM
	Categories []string
}

// New returns an Extractor for the configured category set.
func New(provider llm.LLM, categories []string) *Extractor {
	if len(categories) == 0 {
		categories = model.DefaultCategories()
	}
	return &Extractor{LLM: provider, Categories: categories}
}

// Extract prompts the model for candidate facts. A single retry with a
// stricter prompt is attempted when the first response contains no
// parseable array and is not the literal "[]".
func (e *Extractor) Extract(ctx context.Context, messages []Message) ([]model.Candidate, error) {
	if e.LLM == nil {
		return nil, model.Errorf(model.KindNoLLM, "extract", "no language model configured")
	}

	prompt := e.buildPrompt(messages, false)
	text, err := e.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, model.E(model.KindExtraction, "extract", err)
	}
	candidates, ok := e.parse(text)
	if ok {
		return candidates, nil
	}

	// One stricter retry before giving up.
	text, err = e.LLM.Generate(ctx, e.buildPrompt(messages, true))
	if err != nil {
		return nil, model.E(model.KindExtraction, "extract.retry", err)
	}
	candidates, ok = e.parse(text)
	if !ok {
		return nil, model.Errorf(model.KindExtraction, "extract.retry",
			"no parseable candidate array in model output")
	}
	return candidates, nil
}

func (e *Extractor) buildPrompt(messages []Message, strict bool) string {
	var b strings.Builder
	b.WriteString("Extract short, atomic, self-contained facts worth remembering from the conversation below.\n\n")
	b.WriteString("Categories:\n")
	for _, cat := range e.Categories {
		desc, ok := CategoryDescriptions[cat]
		if !ok {
			desc = "a " + cat + " worth remembering"
		}
		fmt.Fprintf(&b, "- %s: %s\n", cat, desc)
	}
	b.WriteString("\nConversation:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Respond with a bare JSON array of {\"content\", \"category\"} objects.\n")
	b.WriteString("- Each content is one atomic fact, at most 500 characters, third person.\n")
	b.WriteString("- Use only the categories listed above.\n")
	b.WriteString("- Respond with [] when nothing is worth remembering.\n")
	if strict {
		b.WriteString("- Output ONLY the JSON array. No prose, no markdown, no code fences.\n")
	}
	return b.String()
}

// parse tolerates markdown fences and surrounding prose: it strips
// fences, then takes the first balanced [...] substring. The literal []
// parses to an empty candidate list.
func (e *Extractor) parse(text string) ([]model.Candidate, bool) {
	body, ok := extractArray(text)
	if !ok {
		return nil, false
	}
	var raw []struct {
		Content  string `json:"content"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, false
	}
	candidates := make([]model.Candidate, 0, len(raw))
	for _, r := range raw {
		cand := model.Candidate{Content: r.Content, Category: r.Category}.Normalize(e.Categories)
		if cand.Content == "" {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, true
}

func extractArray(text string) (string, bool) {
	text = stripFences(strings.TrimSpace(text))
	start := strings.Index(text, "[")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
