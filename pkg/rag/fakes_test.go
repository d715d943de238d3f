package rag

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/ragstack/ragserve/pkg/domain"
)

// fakeEmbedder returns seeded vectors for known texts and a stable
// hash-derived unit vector for everything else.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	fail  error
	calls int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vecs: make(map[string][]float32)}
}

func (f *fakeEmbedder) seed(text string, vec []float32) { f.vecs[text] = vec }

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vecs[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	// Hash-perturbed around a shared direction so unseeded texts always
	// land well above the default similarity threshold.
	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	raw := []float64{
		16 + float64(sum&0xF),
		16 + float64((sum>>4)&0xF),
		16 + float64((sum>>8)&0xF),
	}
	var norm float64
	for _, x := range raw {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, 3)
	for i, x := range raw {
		out[i] = float32(x / norm)
	}
	return out
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int              { return 3 }
func (f *fakeEmbedder) Health(context.Context) error { return nil }
func (f *fakeEmbedder) Name() string                 { return "fake" }

// fakeGenerator returns a fixed answer and records every prompt.
type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	fail    error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ *domain.GenerationOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.prompts = append(f.prompts, prompt)
	return f.answer, nil
}

func (f *fakeGenerator) Health(context.Context) error { return nil }
func (f *fakeGenerator) Name() string                 { return "fake" }
func (f *fakeGenerator) Model() string                { return "fake-model" }

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// failingVectorStore fails the first failures InsertBatch calls, then
// delegates.
type failingVectorStore struct {
	domain.VectorStore
	mu       sync.Mutex
	failures int
	err      error
	inserts  int
	deletes  int
}

func (f *failingVectorStore) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	f.inserts++
	shouldFail := f.failures > 0
	if shouldFail {
		f.failures--
	}
	f.mu.Unlock()
	if shouldFail {
		return f.err
	}
	return f.VectorStore.InsertBatch(ctx, chunks)
}

func (f *failingVectorStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	return f.VectorStore.DeleteByDocument(ctx, documentID)
}
