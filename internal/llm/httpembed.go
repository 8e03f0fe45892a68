package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	EmbedKindAPI    = "api"
	EmbedKindOllama = "ollama"

	defaultOpenAIBaseURL          = "https://api.openai.com"
	defaultOllamaEmbeddingBaseURL = "http://127.0.0.1:11434"
	defaultEmbedTimeout           = 30 * time.Second
)

type HTTPEmbedderConfig struct {
	Kind      string
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// HTTPEmbedder calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPEmbedder struct {
	kind        string
	baseURL     string
	apiKey      string
	model       string
	expectedDim int
	httpClient  *http.Client
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

func NewHTTPEmbedder(cfg HTTPEmbedderConfig) *HTTPEmbedder {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = EmbedKindAPI
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}
	e := &HTTPEmbedder{
		kind:        kind,
		baseURL:     strings.TrimSpace(cfg.BaseURL),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       strings.TrimSpace(cfg.Model),
		expectedDim: cfg.Dimension,
		httpClient:  &http.Client{Timeout: timeout},
	}
	if e.kind == EmbedKindOllama && e.baseURL == "" {
		e.baseURL = defaultOllamaEmbeddingBaseURL
	}
	return e
}

// Generate is unsupported; the embedder only serves vectors.
func (e *HTTPEmbedder) Generate(context.Context, Request) (string, error) {
	return "", errors.New("embedding provider cannot generate text")
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("embed: empty text")
	}
	if e.model == "" {
		return nil, errors.New("embed: missing embedding model")
	}

	baseURL, err := e.resolveBaseURL()
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: trimmed})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("embed: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("embed: decode response: %w", err)
	}
	return e.validate(decoded.Data)
}

func (e *HTTPEmbedder) resolveBaseURL() (string, error) {
	baseURL := strings.TrimRight(e.baseURL, "/")
	switch e.kind {
	case EmbedKindAPI:
		if baseURL == "" {
			return "", errors.New("missing embedding base url")
		}
		if e.apiKey == "" {
			return "", errors.New("missing embedding api key")
		}
		return baseURL, nil
	case EmbedKindOllama:
		return baseURL, nil
	default:
		return "", fmt.Errorf("unsupported embedding kind: %s", e.kind)
	}
}

func (e *HTTPEmbedder) validate(data []embeddingData) ([]float32, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("embed: expected 1 embedding, got %d", len(data))
	}
	vec := data[0].Embedding
	if len(vec) == 0 {
		return nil, errors.New("embed: empty embedding vector")
	}
	if e.expectedDim > 0 && len(vec) != e.expectedDim {
		return nil, fmt.Errorf("embed: dimension %d, want %d", len(vec), e.expectedDim)
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}
