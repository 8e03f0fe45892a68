package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/mindloop/internal/llm"
)

type cannedGenerator struct {
	text     string
	prompt   string
	provider string
}

func (g *cannedGenerator) Generate(_ context.Context, prompt, providerID string, jsonMode bool) llm.Reply {
	g.prompt = prompt
	g.provider = providerID
	if !jsonMode {
		return llm.Reply{Text: g.text}
	}
	return llm.ParseReply(g.text)
}

func TestExtract(t *testing.T) {
	gen := &cannedGenerator{text: "```json\n{\"essence\": \" Helper fixed the build. \", \"dominant_emotions\": [\"Joy\", \" Trust \", \"\"], \"memory_weight\": 1.4, \"the_lesson\": \"Run tests first.\"}\n```"}
	ex := NewExtractor(gen, "google", "Consciousness")

	got, err := ex.Extract(context.Background(), "user: it builds now")
	require.NoError(t, err)
	assert.Equal(t, "Helper fixed the build.", got.Essence)
	assert.Equal(t, []string{"Joy", "Trust"}, got.Emotions)
	assert.Equal(t, 1.0, got.Weight)
	assert.Equal(t, "Run tests first.", got.Lesson)
	assert.Equal(t, "google", gen.provider)
	assert.True(t, strings.Contains(gen.prompt, "it builds now"))
	assert.True(t, strings.Contains(gen.prompt, "Pensiveness"))
}

func TestExtractFailures(t *testing.T) {
	ctx := context.Background()

	_, err := NewExtractor(&cannedGenerator{text: "not json"}, "google", "").Extract(ctx, "x")
	assert.Error(t, err)

	_, err = NewExtractor(&cannedGenerator{text: `{"essence": ""}`}, "google", "").Extract(ctx, "x")
	assert.Error(t, err)

	_, err = NewExtractor(&cannedGenerator{text: `{}`}, "google", "").Extract(ctx, "  ")
	assert.Error(t, err)
}
