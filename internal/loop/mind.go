package loop

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/llm"
	"github.com/stellarlinkco/mindloop/internal/logging"
	"github.com/stellarlinkco/mindloop/internal/transcript"
)

// Generator is the part of the LLM gateway the loops call.
type Generator interface {
	Generate(ctx context.Context, prompt, providerID string, jsonMode bool) llm.Reply
}

// minCreativeImpulse is the shortest impulse worth a creative call.
const minCreativeImpulse = 6

// Mind runs the internal planning pass before a visible reply: a creative
// provider proposes an unusual idea, then the main provider distils essence and plan.
type Mind struct {
	gen      Generator
	provider string
	creative string
	logger   *zap.Logger
}

func NewMind(gen Generator, provider, creativeProvider string, logger *zap.Logger) *Mind {
	return &Mind{
		gen:      gen,
		provider: provider,
		creative: creativeProvider,
		logger:   logging.OrNop(logger).Named("mind"),
	}
}

func (m *Mind) Think(ctx context.Context, identity Identity, relevant []transcript.Relevant, local []transcript.Entry, impulse string) Thought {
	ident := shorten(identity.String(), mindBlockMax)
	mem := mindMemory(relevant)
	hist := mindContext(local)

	ideas := "No external ideas."
	if len(impulse) >= minCreativeImpulse {
		ideas = m.ideas(ctx, impulse, ident, mem, hist)
	}

	reply := m.gen.Generate(ctx, MindPrompt(impulse, ident, mem, hist, ideas), m.provider, true)
	t := Thought{
		Essence: strings.TrimSpace(reply.Field("essence")),
		Plan:    strings.TrimSpace(reply.Field("plan")),
	}
	if reply.Failed {
		m.logger.Warn("planning pass degraded", zap.String("reply", reply.Text))
	}
	m.logger.Debug("thought complete", zap.Int("size", len(t.Essence)+len(t.Plan)))
	return t
}

func (m *Mind) ideas(ctx context.Context, impulse, ident, mem, hist string) string {
	reply := m.gen.Generate(ctx, CreativePrompt(impulse, ident, mem, hist), m.creative, true)
	if reply.Failed {
		return "Creative engine reported error: " + reply.Text
	}
	var out struct {
		Ideas []string `json:"ideas"`
	}
	if err := reply.Decode(&out); err == nil && len(out.Ideas) > 0 {
		return strings.Join(out.Ideas, "\n")
	}
	if strings.TrimSpace(reply.Text) != "" {
		return reply.Text
	}
	return "No creative ideas were generated."
}
