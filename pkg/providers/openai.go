package providers

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/ragstack/ragserve/pkg/domain"
)

// OpenAIConfig covers any OpenAI-compatible endpoint; BaseURL switches to
// self-hosted gateways.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	EmbedModel    string
	GenerateModel string
	Dimensions    int
	Temperature   float64
	MaxRetries    int
}

func openAIClient(cfg OpenAIConfig) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return openai.NewClient(opts...)
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	config OpenAIConfig
}

var _ domain.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not configured", domain.ErrConfig)
	}
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("%w: openai embed model not configured", domain.ErrConfig)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions not configured", domain.ErrConfig)
	}

	return &OpenAIEmbedder{client: openAIClient(cfg), config: cfg}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.config.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: no embedding data returned", domain.ErrEmbedding)
	}

	return toFloat32(resp.Data[0].Embedding), nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.config.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrEmbedding, len(texts), len(resp.Data))
	}

	// The API may return data out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrEmbedding, d.Index)
		}
		vectors[d.Index] = toFloat32(d.Embedding)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OpenAIEmbedder) Name() string { return string(domain.ProviderOpenAI) }

func (e *OpenAIEmbedder) Health(ctx context.Context) error {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.config.EmbedModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String("ping"),
		},
	}
	if _, err := e.client.Embeddings.New(ctx, params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return nil
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// OpenAIGenerator produces completions through the chat completions API.
type OpenAIGenerator struct {
	client openai.Client
	config OpenAIConfig
}

var _ domain.Generator = (*OpenAIGenerator)(nil)

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not configured", domain.ErrConfig)
	}
	if cfg.GenerateModel == "" {
		return nil, fmt.Errorf("%w: openai generate model not configured", domain.ErrConfig)
	}

	return &OpenAIGenerator{client: openAIClient(cfg), config: cfg}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts *domain.GenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInvalidInput)
	}

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.config.GenerateModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(g.config.Temperature),
	}
	if opts != nil {
		params.Temperature = openai.Float(opts.Temperature)
		if opts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
		}
	}

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLLM, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrLLM)
	}
	return completion.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Name() string { return string(domain.ProviderOpenAI) }

func (g *OpenAIGenerator) Model() string { return g.config.GenerateModel }

func (g *OpenAIGenerator) Health(ctx context.Context) error {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.config.GenerateModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxCompletionTokens: openai.Int(1),
	}
	if _, err := g.client.Chat.Completions.New(ctx, params); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLLM, err)
	}
	return nil
}
