package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quarry-ai/quarry/internal/core"
)

type OpenAIEmbedder struct {
	client    *openai.Client
	modelName string
}

// NewOpenAIEmbedder also speaks to OpenAI-compatible endpoints when
// baseURL is set (Azure gateways, local inference servers).
func NewOpenAIEmbedder(apiKey, baseURL, modelName string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), modelName: modelName}
}

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(o.modelName),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai embed: %v", core.ErrExternalService, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai embed size mismatch: got %d want %d", core.ErrExternalService, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)
