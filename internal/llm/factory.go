package llm

import (
	"context"
	"fmt"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/internal/core"
)

// NewProviders builds the embedding and generation providers selected by
// AI_PROVIDER. Both come from the same vendor; mixing is not supported.
func NewProviders(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, core.LLMProvider, error) {
	switch cfg.AIProvider {
	case "", "gemini":
		emb, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini embedder: %w", err)
		}
		gen, err := NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini llm: %w", err)
		}
		return emb, gen, nil
	case "openai":
		return NewOpenAIEmbedder(cfg.AIAPIKey, cfg.AIBaseURL, cfg.EmbedModel),
			NewOpenAILLM(cfg.AIAPIKey, cfg.AIBaseURL, cfg.GenModel), nil
	default:
		return nil, nil, fmt.Errorf("unknown AI_PROVIDER %q (want gemini or openai)", cfg.AIProvider)
	}
}
