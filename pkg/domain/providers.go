package domain

import "context"

// ProviderType names a provider backend family.
type ProviderType string

const (
	ProviderOllama ProviderType = "ollama"
	ProviderOpenAI ProviderType = "openai"
	ProviderHNSW   ProviderType = "hnsw"
	ProviderQdrant ProviderType = "qdrant"
	ProviderLocal  ProviderType = "local"
	ProviderS3     ProviderType = "s3"
)

// Embedder maps text into a fixed-dimension vector space. Dimensions is
// constant for the lifetime of the instance and equals every returned
// vector's length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Health(ctx context.Context) error
	Name() string
}

// Generator produces text from a prompt. Implementations retry transient
// transport errors internally up to their configured max_retries.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts *GenerationOptions) (string, error)
	Health(ctx context.Context) error
	Name() string
	Model() string
}

// VectorStore owns chunks after insertion and serves cosine-similarity
// search. Results come back in descending similarity; ties break on lower
// chunk id, then lower document id. A non-nil filter restricts candidates
// to the given document ids before ranking.
type VectorStore interface {
	Insert(ctx context.Context, chunk Chunk) error
	InsertBatch(ctx context.Context, chunks []Chunk) error
	Search(ctx context.Context, vector []float32, topK int, filter []string) ([]SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	Len() int
	Health(ctx context.Context) error
}

// DocumentStore persists original bytes and extracted plain text keyed by
// document id, returning a storage URI (local path or object-store URI).
type DocumentStore interface {
	Store(ctx context.Context, documentID string, raw []byte, text string) (string, error)
	GetRaw(ctx context.Context, documentID string) ([]byte, error)
	GetText(ctx context.Context, documentID string) (string, error)
	Exists(ctx context.Context, documentID string) (bool, error)
	Delete(ctx context.Context, documentID string) error
	List(ctx context.Context) ([]string, error)
	URI(documentID string) string
}
