package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/stellarlinkco/mindloop/internal/config"
)

// GoogleProvider talks to Gemini through the genai SDK for both generation
// and embeddings.
type GoogleProvider struct {
	client      *genai.Client
	model       string
	embedModel  string
	temperature float32
}

func NewGoogle(ctx context.Context, pc config.ProviderConfig) (*GoogleProvider, error) {
	if pc.APIKey == "" {
		return nil, errors.New("google provider: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  pc.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}
	temp := pc.Temperature
	if temp <= 0 {
		temp = config.DefaultTemperature
	}
	return &GoogleProvider{
		client:      client,
		model:       firstNonEmpty(pc.Model, config.DefaultGoogleModel),
		embedModel:  firstNonEmpty(pc.EmbedModel, config.DefaultGoogleEmbed),
		temperature: float32(temp),
	}, nil
}

func (p *GoogleProvider) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

func (p *GoogleProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := p.client.Models.EmbedContent(ctx, p.embedModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("embed content: empty embedding")
	}
	return result.Embeddings[0].Values, nil
}
