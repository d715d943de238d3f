package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
)

func ollamaEmbedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			var count int
			switch input := req.Input.(type) {
			case string:
				count = 1
			case []any:
				count = len(input)
			}

			embeddings := make([][]float32, count)
			for i := range embeddings {
				vec := make([]float32, dims)
				vec[0] = float32(i + 1)
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOllamaEmbedderSingle(t *testing.T) {
	srv := ollamaEmbedServer(t, 4)
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{
		BaseURL:    srv.URL,
		EmbedModel: "nomic-embed-text",
		Dimensions: 4,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, 4, e.Dimensions())
}

func TestOllamaEmbedderBatchSplitsAndPreservesOrder(t *testing.T) {
	srv := ollamaEmbedServer(t, 2)
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{
		BaseURL:    srv.URL,
		EmbedModel: "nomic-embed-text",
		Dimensions: 2,
		BatchSize:  2,
	})
	require.NoError(t, err)

	texts := []string{"a", "b", "c", "d", "e"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for _, v := range vectors {
		assert.Len(t, v, 2)
	}
}

func TestOllamaEmbedderEmptyInput(t *testing.T) {
	e, err := NewOllamaEmbedder(OllamaConfig{
		BaseURL:    "http://localhost:1",
		EmbedModel: "nomic-embed-text",
		Dimensions: 4,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := ollamaEmbedServer(t, 3)
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{
		BaseURL:    srv.URL,
		EmbedModel: "nomic-embed-text",
		Dimensions: 8,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestOllamaEmbedderRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{1, 2}},
		})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(OllamaConfig{
		BaseURL:    srv.URL,
		EmbedModel: "nomic-embed-text",
		Dimensions: 2,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaGeneratorGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3", req.Model)
		assert.False(t, req.Stream)

		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "generated answer", Done: true})
	}))
	defer srv.Close()

	g, err := NewOllamaGenerator(OllamaConfig{
		BaseURL:       srv.URL,
		GenerateModel: "qwen3",
	})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "say something", &domain.GenerationOptions{Temperature: 0.2, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", out)
	assert.Equal(t, "qwen3", g.Model())
}

func TestOllamaGeneratorEmptyPrompt(t *testing.T) {
	g, err := NewOllamaGenerator(OllamaConfig{
		BaseURL:       "http://localhost:1",
		GenerateModel: "qwen3",
	})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestOllamaGeneratorUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	g, err := NewOllamaGenerator(OllamaConfig{
		BaseURL:       srv.URL,
		GenerateModel: "missing",
		MaxRetries:    1,
		Timeout:       5 * time.Second,
	})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "hello", nil)
	assert.ErrorIs(t, err, domain.ErrLLM)
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := withRetry(ctx, 5, func(ctx context.Context) error {
		calls++
		return assert.AnError
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
