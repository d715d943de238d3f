package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ragstack/ragserve/pkg/chunker"
	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/parser"
	"github.com/ragstack/ragserve/pkg/store"
)

type IngestorConfig struct {
	EmbedConcurrency int
	EmbedBatchSize   int
	MaxRetries       int
}

// Ingestor runs the parse -> chunk -> embed -> index pipeline for one
// file at a time and owns document registration and rollback.
type Ingestor struct {
	parser   *parser.Service
	chunker  *chunker.Chunker
	embedder domain.Embedder
	vectors  domain.VectorStore
	docs     domain.DocumentStore
	registry *store.Registry
	cfg      IngestorConfig
}

func NewIngestor(
	p *parser.Service,
	c *chunker.Chunker,
	embedder domain.Embedder,
	vectors domain.VectorStore,
	docs domain.DocumentStore,
	registry *store.Registry,
	cfg IngestorConfig,
) *Ingestor {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 8
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Ingestor{
		parser:   p,
		chunker:  c,
		embedder: embedder,
		vectors:  vectors,
		docs:     docs,
		registry: registry,
		cfg:      cfg,
	}
}

// IngestResult reports one file's outcome. Deduped means the bytes were
// already in the corpus and the existing document is returned unchanged.
type IngestResult struct {
	Document domain.Document
	Chunks   []domain.Chunk
	Attempts []domain.ParserAttempt
	Deduped  bool
}

// StageFunc observes per-file pipeline stage transitions.
type StageFunc func(domain.FileStatus)

// IngestFile runs the full pipeline for one file. The document becomes
// visible in the registry only after every chunk is indexed and the
// original is persisted, so concurrent queries never see a partial
// document. Embedding and indexing failures are retried with backoff;
// on final failure any inserted chunks are rolled back.
func (ing *Ingestor) IngestFile(ctx context.Context, filename string, data []byte, stage StageFunc) (*IngestResult, error) {
	report := func(s domain.FileStatus) {
		if stage != nil {
			stage(s)
		}
	}

	hash := parser.ContentHash(data)
	if existing, ok := ing.registry.FindByHash(hash); ok {
		log.Debug("ingest deduplicated", "filename", filename, "document_id", existing.ID)
		report(domain.FileDone)
		return &IngestResult{Document: existing, Deduped: true}, nil
	}

	report(domain.FileParsing)
	parsed, err := ing.parser.Parse(filename, data)
	if err != nil {
		var attempts []domain.ParserAttempt
		if parsed != nil {
			attempts = parsed.Attempts
		}
		return &IngestResult{Attempts: attempts}, err
	}
	if err := ctx.Err(); err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	doc := domain.Document{
		ID:          uuid.New().String(),
		Filename:    filename,
		FileType:    parsed.FileType,
		Language:    parsed.Language,
		ContentHash: hash,
		Size:        int64(len(data)),
		TotalPages:  parsed.TotalPages,
		CreatedAt:   time.Now().UTC(),
	}

	report(domain.FileChunking)
	chunks, err := ing.chunker.Chunk(doc, parsed)
	if err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, fmt.Errorf("%w: %v", domain.ErrFileParse, err)
	}
	doc.TotalChunks = len(chunks)
	if err := ctx.Err(); err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	report(domain.FileEmbedding)
	if err := ing.embedChunks(ctx, chunks); err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, err
	}
	if err := ctx.Err(); err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	report(domain.FileIndexing)
	if err := ing.indexWithRetry(ctx, doc.ID, chunks); err != nil {
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	if _, err := ing.docs.Store(ctx, doc.ID, data, parsed.Content); err != nil {
		ing.rollback(ctx, doc.ID)
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	if err := ing.registry.Register(ctx, doc); err != nil {
		// A concurrent ingest of the same bytes won the hash race; fold
		// into its document.
		ing.rollback(ctx, doc.ID)
		_ = ing.docs.Delete(ctx, doc.ID)
		if existing, ok := ing.registry.FindByHash(hash); ok {
			report(domain.FileDone)
			return &IngestResult{Document: existing, Attempts: parsed.Attempts, Deduped: true}, nil
		}
		return &IngestResult{Attempts: parsed.Attempts}, err
	}

	report(domain.FileDone)
	log.Info("document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"file_type", string(doc.FileType),
		"chunks", doc.TotalChunks)
	return &IngestResult{Document: doc, Chunks: chunks, Attempts: parsed.Attempts}, nil
}

// embedChunks fills chunk vectors in place, batching the embedder calls
// and running batches concurrently up to the configured cap.
func (ing *Ingestor) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.cfg.EmbedConcurrency)

	for start := 0; start < len(chunks); start += ing.cfg.EmbedBatchSize {
		end := start + ing.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			vectors, err := ing.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: expected %d vectors, got %d", domain.ErrEmbedding, len(batch), len(vectors))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// indexWithRetry inserts chunks in ordinal order, retrying the whole
// batch with exponential backoff and rolling back on final failure.
func (ing *Ingestor) indexWithRetry(ctx context.Context, docID string, chunks []domain.Chunk) error {
	var lastErr error
	for attempt := 0; attempt < ing.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				ing.rollback(ctx, docID)
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if lastErr = ing.vectors.InsertBatch(ctx, chunks); lastErr == nil {
			return nil
		}
		// A failed batch may have inserted a prefix; clear it before the
		// next attempt so ordinals stay a clean permutation.
		ing.rollback(ctx, docID)
	}
	return lastErr
}

func (ing *Ingestor) rollback(ctx context.Context, docID string) {
	if _, err := ing.vectors.DeleteByDocument(ctx, docID); err != nil {
		log.Warn("rollback failed", "document_id", docID, "error", err)
	}
}
