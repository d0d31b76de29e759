// Package provider wraps the hosted Azure OpenAI deployments behind narrow
// chat and embedding interfaces. Consumers depend on these instead of the
// SDK client so tests can swap in fakes.
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable wraps transport and upstream failures from the provider.
// The API layer maps it to 503.
var ErrUnavailable = errors.New("provider unavailable")

// ChatModel produces a completion from a system instruction and user message.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
