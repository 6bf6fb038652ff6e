// Package llm provides clients for the external generation and embedding
// models. Both kinds of call are idempotent for a given input, so wrapping
// them in RetryGenerator/RetryEmbedder is always safe.
package llm

import "context"

// Client generates answer text from a system prompt and a user message.
type Client interface {
	Chat(ctx context.Context, model string, system, user string) (*LLMResponse, error)
}

// EmbeddingClient converts texts into fixed-dimension vectors. EmbedBatch
// must behave as if Embed were called per input: batch boundaries never
// change the vector produced for a given text.
type EmbeddingClient interface {
	Embed(ctx context.Context, model, input string) (*EmbeddingResponse, error)
	EmbedBatch(ctx context.Context, model string, inputs []string) ([]EmbeddingResponse, error)
}

// ClientConfig configures an HTTP model client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout int // seconds
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{Timeout: 60}
}
