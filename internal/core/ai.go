package core

import "context"

// EmbeddingProvider turns batches of texts into fixed-dimension vectors.
// Calls are synchronous and may fail or time out; callers degrade to
// keyword-only retrieval when they do.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates text from a system prompt and a user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
