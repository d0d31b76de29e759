package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/kalambet/ttyv/internal/config"
)

// Compile-time checks that AzureClient satisfies both provider interfaces.
var (
	_ ChatModel = (*AzureClient)(nil)
	_ Embedder  = (*AzureClient)(nil)
)

const requestTimeout = 60 * time.Second

// AzureClient talks to Azure OpenAI chat and embedding deployments.
type AzureClient struct {
	client          openai.Client
	chatDeployment  string
	embedDeployment string
}

// NewAzureClient builds a client from the Azure section of the config.
// Every request carries a bounded timeout so a stuck upstream surfaces as
// an error instead of hanging the caller.
func NewAzureClient(cfg config.AzureConfig) *AzureClient {
	return &AzureClient{
		client: openai.NewClient(
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(requestTimeout),
		),
		chatDeployment:  cfg.ChatDeployment,
		embedDeployment: cfg.EmbedDeployment,
	}
}

// Complete sends one system + user turn to the chat deployment and returns
// the assistant's text.
func (c *AzureClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatDeployment),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(1500),
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion returned no choices", ErrUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for a single text.
func (c *AzureClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The deployment accepts up to a
// few thousand inputs per call; callers batch well below that.
func (c *AzureClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedDeployment),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %v", ErrUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings returned %d vectors for %d inputs", ErrUnavailable, len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		vecs[d.Index] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: embeddings response missing index %d", ErrUnavailable, i)
		}
	}
	return vecs, nil
}
