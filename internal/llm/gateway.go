// Package llm is the single boundary to text generation and embedding vendors.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/logging"
)

var ErrEmbedUnsupported = errors.New("provider does not support embeddings")

// Request is the normalized generation request handed to a Provider.
type Request struct {
	Prompt   string
	System   string
	JSONMode bool
}

// Provider is one vendor integration.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Reply is the normalized generation result. Failed is set when the text
// describes a provider or parse failure instead of model output.
type Reply struct {
	Text   string
	Tools  []ToolCall
	Raw    json.RawMessage
	Failed bool
}

// Decode unmarshals the raw JSON object of a JSON-mode reply into v.
func (r Reply) Decode(v any) error {
	if len(r.Raw) == 0 {
		return errors.New("reply carries no JSON object")
	}
	return json.Unmarshal(r.Raw, v)
}

// Field returns a top level string field of a JSON-mode reply.
func (r Reply) Field(name string) string {
	var m map[string]any
	if err := r.Decode(&m); err != nil {
		return ""
	}
	s, _ := m[name].(string)
	return s
}

type Gateway struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultID string
	embedID   string
	timeout   time.Duration
	logger    *zap.Logger
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

func WithEmbedProvider(id string) Option {
	return func(g *Gateway) { g.embedID = id }
}

func NewGateway(defaultID string, opts ...Option) *Gateway {
	g := &Gateway{
		providers: make(map[string]Provider),
		defaultID: defaultID,
		embedID:   defaultID,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrNop(g.logger).Named("llm")
	return g
}

func (g *Gateway) Register(id string, p Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[id] = p
}

func (g *Gateway) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]string, 0, len(g.providers))
	for id := range g.providers {
		ids = append(ids, id)
	}
	return ids
}

func (g *Gateway) provider(id, fallback string) (Provider, string, error) {
	if strings.TrimSpace(id) == "" {
		id = fallback
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[id]
	if !ok {
		return nil, id, fmt.Errorf("unknown provider: %s", id)
	}
	return p, id, nil
}

func (g *Gateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout > 0 {
		return context.WithTimeout(ctx, g.timeout)
	}
	return context.WithCancel(ctx)
}

// Generate never fails: provider and parse errors come back as a Reply whose
// Text describes the failure.
func (g *Gateway) Generate(ctx context.Context, prompt, providerID string, jsonMode bool) Reply {
	p, id, err := g.provider(providerID, g.defaultID)
	if err != nil {
		g.logger.Warn("generate with unknown provider", zap.String("provider", id))
		return Reply{Text: "ERROR: " + err.Error(), Tools: []ToolCall{}, Failed: true}
	}

	callCtx, cancel := g.bound(ctx)
	defer cancel()
	text, err := p.Generate(callCtx, Request{Prompt: prompt, JSONMode: jsonMode})
	if err != nil {
		g.logger.Error("generate failed", zap.String("provider", id), zap.Error(err))
		return Reply{Text: fmt.Sprintf("CRITICAL ERROR (%s): %v", id, err), Tools: []ToolCall{}, Failed: true}
	}
	if !jsonMode {
		return Reply{Text: text, Tools: []ToolCall{}}
	}
	return ParseReply(text)
}

// Embed returns nil when the provider fails or yields nothing.
func (g *Gateway) Embed(ctx context.Context, text, providerID string) []float32 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	p, id, err := g.provider(providerID, g.embedID)
	if err != nil {
		g.logger.Warn("embed with unknown provider", zap.String("provider", id))
		return nil
	}
	callCtx, cancel := g.bound(ctx)
	defer cancel()
	vec, err := p.Embed(callCtx, text)
	if err != nil {
		g.logger.Error("embed failed", zap.String("provider", id), zap.Error(err))
		return nil
	}
	return vec
}

// Embedder binds the gateway to one provider id for callers that only embed.
func (g *Gateway) Embedder(providerID string) *BoundEmbedder {
	return &BoundEmbedder{gateway: g, provider: providerID}
}

type BoundEmbedder struct {
	gateway  *Gateway
	provider string
}

func (e *BoundEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := e.gateway.Embed(ctx, text, e.provider)
	if len(vec) == 0 {
		return nil, errors.New("empty embedding")
	}
	return vec, nil
}
