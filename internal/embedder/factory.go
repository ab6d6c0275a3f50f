package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai or local; empty picks jina when APIKey is set
	APIKey    string
	Model     string // Optional: override the provider's default model
	BaseURL   string // Optional: override the provider's endpoint
	CacheSize int    // 0 disables caching
}

// New creates an embedder from explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch DetectProvider(cfg) {
	case ProviderJina:
		return NewAPIProvider(jinaSettings(cfg), cache)
	case ProviderOpenAI:
		return NewAPIProvider(openAISettings(cfg), cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider New would build for cfg
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		return ProviderJina
	}
	return ProviderLocal
}

func jinaSettings(cfg Config) APISettings {
	s := APISettings{
		Name:      ProviderJina,
		Endpoint:  JinaEndpoint,
		APIKey:    cfg.APIKey,
		Model:     DefaultJinaModel,
		Dimension: JinaDimension,
	}
	return s.override(cfg)
}

func openAISettings(cfg Config) APISettings {
	s := APISettings{
		Name:      ProviderOpenAI,
		Endpoint:  OpenAIEndpoint,
		APIKey:    cfg.APIKey,
		Model:     DefaultOpenAIModel,
		Dimension: OpenAIDimension,
	}
	return s.override(cfg)
}

func (s APISettings) override(cfg Config) APISettings {
	if cfg.Model != "" {
		s.Model = cfg.Model
	}
	if cfg.BaseURL != "" {
		s.Endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/embeddings"
	}
	return s
}
