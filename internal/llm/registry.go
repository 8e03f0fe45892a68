package llm

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/stellarlinkco/mindloop/internal/config"
)

// FromConfig builds a gateway with one provider per configured entry. Entries
// that cannot be constructed (for example missing keys) are skipped and logged.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	g := NewGateway(cfg.LLM.DefaultProvider,
		WithEmbedProvider(cfg.LLM.EmbedProvider),
		WithTimeout(cfg.LLMTimeout()),
		WithLogger(logger),
	)

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p, err := buildProvider(ctx, cfg.Providers[id])
		if err != nil {
			g.logger.Warn("provider skipped", zap.String("provider", id), zap.Error(err))
			continue
		}
		g.Register(id, p)
	}
	return g, nil
}

func buildProvider(ctx context.Context, pc config.ProviderConfig) (Provider, error) {
	switch pc.Type {
	case "google":
		return NewGoogle(ctx, pc)
	case "openai":
		if pc.APIKey == "" && pc.BaseURL == "" {
			return nil, fmt.Errorf("openai provider: api key is required")
		}
		return NewOpenAI(pc), nil
	case "anthropic":
		if pc.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider: api key is required")
		}
		return NewAnthropic(pc), nil
	case EmbedKindOllama, "embedding":
		kind := EmbedKindAPI
		if pc.Type == EmbedKindOllama {
			kind = EmbedKindOllama
		}
		return NewHTTPEmbedder(HTTPEmbedderConfig{
			Kind:    kind,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Model:   firstNonEmpty(pc.EmbedModel, pc.Model),
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", pc.Type)
	}
}
