package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragstack/ragserve/pkg/domain"
)

// OllamaConfig configures both the embedder and the generator; they share
// one Ollama endpoint.
type OllamaConfig struct {
	BaseURL       string
	EmbedModel    string
	GenerateModel string
	Dimensions    int
	BatchSize     int
	Temperature   float64
	Timeout       time.Duration
	MaxRetries    int
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaEmbedder generates embeddings via Ollama's /api/embed batch API.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
}

var _ domain.Embedder = (*OllamaEmbedder)(nil)

func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	cfg.applyDefaults()
	if cfg.EmbedModel == "" {
		return nil, fmt.Errorf("%w: ollama embed model not configured", domain.ErrConfig)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions not configured", domain.ErrConfig)
	}

	return &OllamaEmbedder{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
	}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrInvalidInput)
	}

	vectors, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts preserving order, splitting the input into
// configured batch sizes. Each sub-batch is retried independently.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vectors...)
	}
	return results, nil
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.EmbedModel, Input: input})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal embed request: %v", domain.ErrJSON, err)
	}

	var vectors [][]float32
	err = withRetry(ctx, e.config.MaxRetries, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()

		var result ollamaEmbedResponse
		if err := e.post(reqCtx, "/api/embed", body, &result); err != nil {
			return err
		}
		if len(result.Embeddings) != len(texts) {
			return fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
		}
		for i, vec := range result.Embeddings {
			if len(vec) != e.config.Dimensions {
				return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(vec), e.config.Dimensions)
			}
		}
		vectors = result.Embeddings
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OllamaEmbedder) Name() string { return string(domain.ProviderOllama) }

// Health verifies the endpoint responds and the embed model is pulled.
func (e *OllamaEmbedder) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable: %v", domain.ErrEmbedding, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", domain.ErrEmbedding, resp.StatusCode)
	}
	return nil
}

func (e *OllamaEmbedder) post(ctx context.Context, path string, body []byte, out any) error {
	return ollamaPost(ctx, e.client, e.config.BaseURL+path, body, out)
}

// OllamaGenerator produces completions via /api/generate (non-streaming).
type OllamaGenerator struct {
	client *http.Client
	config OllamaConfig
}

var _ domain.Generator = (*OllamaGenerator)(nil)

func NewOllamaGenerator(cfg OllamaConfig) (*OllamaGenerator, error) {
	cfg.applyDefaults()
	if cfg.GenerateModel == "" {
		return nil, fmt.Errorf("%w: ollama generate model not configured", domain.ErrConfig)
	}

	return &OllamaGenerator{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        8,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
	}, nil
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts *domain.GenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInvalidInput)
	}

	options := map[string]any{"temperature": g.config.Temperature}
	if opts != nil {
		options["temperature"] = opts.Temperature
		if opts.MaxTokens > 0 {
			options["num_predict"] = opts.MaxTokens
		}
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   g.config.GenerateModel,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal generate request: %v", domain.ErrJSON, err)
	}

	var answer string
	err = withRetry(ctx, g.config.MaxRetries, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		var result ollamaGenerateResponse
		if err := ollamaPost(reqCtx, g.client, g.config.BaseURL+"/api/generate", body, &result); err != nil {
			return err
		}
		answer = result.Response
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLLM, err)
	}
	return answer, nil
}

func (g *OllamaGenerator) Name() string { return string(domain.ProviderOllama) }

func (g *OllamaGenerator) Model() string { return g.config.GenerateModel }

func (g *OllamaGenerator) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama unreachable: %v", domain.ErrLLM, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama returned status %d", domain.ErrLLM, resp.StatusCode)
	}
	return nil
}

func ollamaPost(ctx context.Context, client *http.Client, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamHTTP, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
