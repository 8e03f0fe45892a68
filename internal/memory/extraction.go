package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/mindloop/internal/llm"
)

// Generator is the part of the LLM gateway the extractor needs.
type Generator interface {
	Generate(ctx context.Context, prompt, providerID string, jsonMode bool) llm.Reply
}

// Extractor condenses a transcript snippet into a storable Extraction.
type Extractor struct {
	gen      Generator
	provider string
	roleName string
}

func NewExtractor(gen Generator, provider, roleName string) *Extractor {
	if roleName == "" {
		roleName = "Me"
	}
	return &Extractor{gen: gen, provider: provider, roleName: roleName}
}

// Provider is the generation provider id, recorded as the model version.
func (e *Extractor) Provider() string {
	return e.provider
}

func (e *Extractor) Extract(ctx context.Context, snippet string) (*Extraction, error) {
	if strings.TrimSpace(snippet) == "" {
		return nil, errors.New("extract: empty snippet")
	}
	reply := e.gen.Generate(ctx, ExtractionPrompt(e.roleName, snippet), e.provider, true)
	if reply.Failed {
		return nil, fmt.Errorf("extract: %s", reply.Text)
	}
	var ext Extraction
	if err := reply.Decode(&ext); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	ext.Essence = strings.TrimSpace(ext.Essence)
	if ext.Essence == "" {
		return nil, errors.New("extract: model returned no essence")
	}
	ext.Weight = clamp01(ext.Weight)
	ext.Emotions = cleanTags(ext.Emotions)
	return &ext, nil
}

// ExtractionPrompt asks for essence, three emotions, weight and lesson as JSON.
func ExtractionPrompt(roleName, snippet string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the memory of %s. Analyse the conversation fragment below and distil one memory.\n\n", roleName)
	b.WriteString("Rules:\n")
	b.WriteString("- essence: at most 2 sentences of fact. Call the human \"Helper\" and yourself \"Me\".\n")
	b.WriteString("- dominant_emotions: exactly 3 tags, chosen only from: ")
	b.WriteString(strings.Join(Emotions, ", "))
	b.WriteString(".\n")
	b.WriteString("- memory_weight: a number between 0 and 1. Small talk is near 0, decisions and discoveries near 1.\n")
	b.WriteString("- the_lesson: one sentence on what to do differently or keep doing.\n\n")
	b.WriteString("Fragment:\n")
	b.WriteString(snippet)
	b.WriteString("\n\nRespond with JSON: {\"essence\": \"...\", \"dominant_emotions\": [\"...\", \"...\", \"...\"], \"memory_weight\": 0.0, \"the_lesson\": \"...\"}")
	return b.String()
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
