// Package relay holds side conversations with external personas, each with
// its own bounded history.
package relay

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/llm"
	"github.com/stellarlinkco/mindloop/internal/logging"
)

// MaxHistory is the number of turns kept per persona.
const MaxHistory = 40

type Generator interface {
	Generate(ctx context.Context, prompt, providerID string, jsonMode bool) llm.Reply
}

type Persona struct {
	ID       string
	Label    string
	Provider string
	System   string
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Relay struct {
	gen      Generator
	store    *filestore.Store
	personas map[string]Persona
	logger   *zap.Logger
}

// DefaultPersonas binds the built-in personas to provider ids.
func DefaultPersonas(knowledgeProvider, creativeProvider, logicProvider string) []Persona {
	return []Persona{
		{ID: "knowledge", Label: "Knowledge", Provider: knowledgeProvider,
			System: "You are a precise research assistant. Provide factual, concise answers."},
		{ID: "llama", Label: "Llama", Provider: creativeProvider,
			System: "You are a Creative Persona named Llama. You love fantasy and world-building."},
		{ID: "oss", Label: "OSS", Provider: logicProvider,
			System: "You are a Logical Persona named OSS. You analyze things critically and favor open source philosophy."},
	}
}

func New(gen Generator, store *filestore.Store, personas []Persona, logger *zap.Logger) *Relay {
	m := make(map[string]Persona, len(personas))
	for _, p := range personas {
		m[p.ID] = p
	}
	return &Relay{gen: gen, store: store, personas: m, logger: logging.OrNop(logger).Named("relay")}
}

func historyDoc(persona string) string {
	return "history_" + persona + ".json"
}

// Chat sends message to persona and returns the labelled reply. restart
// clears the persona's history first.
func (r *Relay) Chat(ctx context.Context, personaID, message string, restart bool) (string, error) {
	p, ok := r.personas[personaID]
	if !ok {
		return "", fmt.Errorf("unknown persona: %s", personaID)
	}
	message = strings.TrimSpace(message)
	if message == "" && !restart {
		return "Empty message.", nil
	}

	doc := historyDoc(p.ID)
	var history []Turn
	if !restart {
		var err error
		if history, err = filestore.LoadList[Turn](r.store, doc); err != nil {
			return "", err
		}
	}
	if message != "" {
		history = append(history, Turn{Role: "user", Content: message})
	}

	var conv strings.Builder
	for _, h := range history {
		fmt.Fprintf(&conv, "%s: %s\n", strings.ToUpper(h.Role), h.Content)
	}
	prompt := fmt.Sprintf("%s\n\n[HISTORY]\n%s\n\nASSISTANT:", p.System, conv.String())

	reply := r.gen.Generate(ctx, prompt, p.Provider, false)
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		text = "(No response)"
	}
	if reply.Failed {
		r.logger.Warn("persona call failed", zap.String("persona", p.ID), zap.String("reply", text))
	}
	history = append(history, Turn{Role: "assistant", Content: text})
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	if err := r.store.Save(doc, history); err != nil {
		return "", err
	}
	return p.Label + ": " + text, nil
}

// History returns the stored turns for persona.
func (r *Relay) History(personaID string) ([]Turn, error) {
	return filestore.LoadList[Turn](r.store, historyDoc(personaID))
}
