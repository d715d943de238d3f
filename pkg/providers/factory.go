package providers

import (
	"fmt"

	"github.com/ragstack/ragserve/internal/config"
	"github.com/ragstack/ragserve/pkg/domain"
)

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config) (domain.Embedder, error) {
	switch domain.ProviderType(cfg.Embeddings.Provider) {
	case domain.ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.LLM.BaseURL,
			EmbedModel: embedModel(cfg),
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		})
	case domain.ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			EmbedModel: embedModel(cfg),
			Dimensions: cfg.Embeddings.Dimensions,
			MaxRetries: cfg.LLM.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", domain.ErrConfig, cfg.Embeddings.Provider)
	}
}

// NewGenerator builds the configured LLM provider.
func NewGenerator(cfg *config.Config) (domain.Generator, error) {
	switch domain.ProviderType(cfg.LLM.Provider) {
	case domain.ProviderOllama:
		return NewOllamaGenerator(OllamaConfig{
			BaseURL:       cfg.LLM.BaseURL,
			GenerateModel: cfg.LLM.GenerateModel,
			Temperature:   cfg.LLM.Temperature,
			Timeout:       cfg.LLM.Timeout,
			MaxRetries:    cfg.LLM.MaxRetries,
		})
	case domain.ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:        cfg.OpenAI.APIKey,
			BaseURL:       cfg.OpenAI.BaseURL,
			GenerateModel: cfg.LLM.GenerateModel,
			Temperature:   cfg.LLM.Temperature,
			MaxRetries:    cfg.LLM.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrConfig, cfg.LLM.Provider)
	}
}

// embedModel prefers the embeddings section and falls back to the llm
// section's embed_model for configs written against older layouts.
func embedModel(cfg *config.Config) string {
	if cfg.Embeddings.Model != "" {
		return cfg.Embeddings.Model
	}
	return cfg.LLM.EmbedModel
}
