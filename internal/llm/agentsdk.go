package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/model"

	"github.com/stellarlinkco/mindloop/internal/config"
)

const jsonInstruction = "Respond with a single valid JSON object and nothing else."

// ModelProvider generates text through an agentsdk-go model provider and
// delegates embeddings to an optional HTTP embedder.
type ModelProvider struct {
	provider    model.Provider
	modelName   string
	maxTokens   int
	temperature *float64
	embedder    *HTTPEmbedder
}

func NewOpenAI(pc config.ProviderConfig) *ModelProvider {
	mp := &ModelProvider{
		provider: &model.OpenAIProvider{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			ModelName: pc.Model,
			MaxTokens: maxTokensOrDefault(pc.MaxTokens),
		},
		modelName:   pc.Model,
		maxTokens:   maxTokensOrDefault(pc.MaxTokens),
		temperature: temperatureOf(pc),
	}
	if pc.EmbedModel != "" {
		mp.embedder = NewHTTPEmbedder(HTTPEmbedderConfig{
			Kind:    EmbedKindAPI,
			BaseURL: firstNonEmpty(pc.BaseURL, defaultOpenAIBaseURL),
			APIKey:  pc.APIKey,
			Model:   pc.EmbedModel,
		})
	}
	return mp
}

func NewAnthropic(pc config.ProviderConfig) *ModelProvider {
	return &ModelProvider{
		provider: &model.AnthropicProvider{
			APIKey:    pc.APIKey,
			BaseURL:   pc.BaseURL,
			ModelName: pc.Model,
			MaxTokens: maxTokensOrDefault(pc.MaxTokens),
		},
		modelName:   pc.Model,
		maxTokens:   maxTokensOrDefault(pc.MaxTokens),
		temperature: temperatureOf(pc),
	}
}

func (p *ModelProvider) Generate(ctx context.Context, req Request) (string, error) {
	mdl, err := p.provider.Model(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve model: %w", err)
	}
	system := req.System
	if req.JSONMode {
		system = strings.TrimSpace(system + "\n" + jsonInstruction)
	}
	resp, err := mdl.Complete(ctx, model.Request{
		Messages:    []model.Message{{Role: "user", Content: req.Prompt}},
		System:      system,
		Model:       p.modelName,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if resp == nil {
		return "", errors.New("complete: empty response")
	}
	return resp.Message.Content, nil
}

func (p *ModelProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.embedder == nil {
		return nil, ErrEmbedUnsupported
	}
	return p.embedder.Embed(ctx, text)
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return config.DefaultMaxTokens
	}
	return n
}

func temperatureOf(pc config.ProviderConfig) *float64 {
	t := pc.Temperature
	if t <= 0 {
		t = config.DefaultTemperature
	}
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
