package domain

import (
	"strings"
	"time"
)

// FileType identifies the parser family a document was decoded with.
type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeText     FileType = "text"
	FileTypeMarkdown FileType = "markdown"
	FileTypeHTML     FileType = "html"
	FileTypeCode     FileType = "code"
	FileTypeOffice   FileType = "office"
)

// SourceKind discriminates the provenance form a chunk carries.
type SourceKind string

const (
	SourcePage   SourceKind = "page"
	SourceLines  SourceKind = "lines"
	SourceOffset SourceKind = "offset"
)

// ChunkSource records where a chunk came from inside its document:
// a page for paginated formats, a line range for line-oriented formats,
// or a raw offset/length for opaque text.
type ChunkSource struct {
	Kind      SourceKind `json:"kind"`
	Page      int        `json:"page,omitempty"`
	LineStart int        `json:"line_start,omitempty"`
	LineEnd   int        `json:"line_end,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	Length    int        `json:"length,omitempty"`
}

type Document struct {
	ID          string                 `json:"id"`
	Filename    string                 `json:"filename"`
	FileType    FileType               `json:"file_type"`
	Language    string                 `json:"language,omitempty"`
	ContentHash string                 `json:"content_hash"`
	Size        int64                  `json:"size"`
	TotalPages  int                    `json:"total_pages"`
	TotalChunks int                    `json:"total_chunks"`
	CreatedAt   time.Time              `json:"created_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Chunk is a bounded contiguous fragment of a document. Filename is
// denormalized from the parent document so citations render without a join.
type Chunk struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"document_id"`
	Index      int         `json:"index"`
	Content    string      `json:"content"`
	Vector     []float32   `json:"vector,omitempty"`
	Source     ChunkSource `json:"source"`
	Filename   string      `json:"filename"`
}

// SearchResult pairs a chunk with its cosine similarity to a query vector.
type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// Citation is the user-visible reference from an answer back to a chunk.
// Always derived, never persisted.
type Citation struct {
	ChunkID   string  `json:"chunk_id"`
	Filename  string  `json:"filename"`
	Page      int     `json:"page,omitempty"`
	LineStart int     `json:"line_start,omitempty"`
	LineEnd   int     `json:"line_end,omitempty"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
}

// QueryRequest carries a question plus retrieval tuning knobs.
// Zero values are replaced with defaults by Normalize.
type QueryRequest struct {
	Question            string   `json:"question"`
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold float64  `json:"similarity_threshold,omitempty"`
	Rerank              *bool    `json:"rerank,omitempty"`
	DocumentFilter      []string `json:"document_filter,omitempty"`
	IncludeChunks       bool     `json:"include_chunks,omitempty"`
	Stream              bool     `json:"stream,omitempty"`
}

const (
	DefaultTopK                = 15
	DefaultSimilarityThreshold = 0.20
)

// Normalize fills unset fields with their documented defaults.
func (r *QueryRequest) Normalize() {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.SimilarityThreshold <= 0 {
		r.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if r.Rerank == nil {
		rerank := true
		r.Rerank = &rerank
	}
}

type QueryResponse struct {
	Answer           string     `json:"answer"`
	Citations        []Citation `json:"citations"`
	ChunksRetrieved  int        `json:"chunks_retrieved"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	InteractionID    string     `json:"interaction_id,omitempty"`
	RawChunks        []Chunk    `json:"raw_chunks,omitempty"`
}

// NoAnswerText is returned when retrieval produces no surviving chunks.
const NoAnswerText = "I don't have information about this in the documents"

// NotFoundResponse is the canned successful response for empty retrievals.
func NotFoundResponse(elapsed time.Duration) QueryResponse {
	return QueryResponse{
		Answer:           NoAnswerText,
		Citations:        []Citation{},
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// StringSearchResult is one literal match from a scan of stored plain text.
type StringSearchResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Snippet    string `json:"snippet"`
	Offset     int    `json:"offset"`
}

// QAInteraction is a single question/answer record kept for learning.
type QAInteraction struct {
	ID          string    `json:"id"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	CitedFiles  []string  `json:"cited_files,omitempty"`
	TopScore    float64   `json:"top_score"`
	Feedback    *int      `json:"feedback,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	DocumentIDs []string  `json:"document_ids,omitempty"`
}

// CachedAnswer memoizes a generated answer together with the exact sorted
// set of document ids that produced it. Any divergence between that tuple
// and the live corpus invalidates the entry.
type CachedAnswer struct {
	Answer      string     `json:"answer"`
	Citations   []Citation `json:"citations"`
	DocumentIDs []string   `json:"document_ids"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NormalizeQuestion produces the answer-cache key: lowercased with
// whitespace collapsed to single spaces.
func NormalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// GenerationOptions tune a single LLM call.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}
