package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/chunker"
	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/parser"
	"github.com/ragstack/ragserve/pkg/store"
)

type ingestHarness struct {
	ingestor *Ingestor
	embedder *fakeEmbedder
	vectors  domain.VectorStore
	docs     *store.LocalDocStore
	registry *store.Registry
}

func newIngestHarness(t *testing.T, vectors domain.VectorStore) *ingestHarness {
	t.Helper()
	dir := t.TempDir()

	if vectors == nil {
		vectors = newTestVectorStore(t)
	}
	docs, err := store.NewLocalDocStore(filepath.Join(dir, "docs"))
	require.NoError(t, err)
	registry, err := store.NewRegistry(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { registry.Close() })

	emb := newFakeEmbedder()
	ing := NewIngestor(
		parser.New(parser.ExternalCommand{}),
		chunker.New(chunker.Config{ChunkSize: 200, ChunkOverlap: 40, MinChunkSize: 20}),
		emb, vectors, docs, registry,
		IngestorConfig{EmbedConcurrency: 2, EmbedBatchSize: 4, MaxRetries: 3},
	)
	return &ingestHarness{ingestor: ing, embedder: emb, vectors: vectors, docs: docs, registry: registry}
}

func testFileBody() []byte {
	return []byte(strings.Repeat("The pipeline turns documents into indexed chunks. ", 20))
}

func TestIngestFileEndToEnd(t *testing.T) {
	h := newIngestHarness(t, nil)
	var stages []domain.FileStatus

	res, err := h.ingestor.IngestFile(context.Background(), "guide.txt", testFileBody(), func(s domain.FileStatus) {
		stages = append(stages, s)
	})
	require.NoError(t, err)
	require.False(t, res.Deduped)

	doc := res.Document
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "guide.txt", doc.Filename)
	assert.Equal(t, domain.FileTypeText, doc.FileType)
	assert.Equal(t, len(res.Chunks), doc.TotalChunks)
	assert.Greater(t, doc.TotalChunks, 1)

	// Chunk ids are docID_index with dense ordinals.
	for i, c := range res.Chunks {
		assert.Equal(t, doc.ID+"_"+string(rune('0'+i)), c.ID)
		assert.Equal(t, i, c.Index)
	}

	assert.Equal(t, len(res.Chunks), h.vectors.Len())

	got, ok := h.registry.Get(doc.ID)
	require.True(t, ok)
	assert.Equal(t, doc.TotalChunks, got.TotalChunks)

	text, err := h.docs.GetText(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "indexed chunks")

	assert.Equal(t, []domain.FileStatus{
		domain.FileParsing, domain.FileChunking, domain.FileEmbedding,
		domain.FileIndexing, domain.FileDone,
	}, stages)
}

func TestIngestFileDeduplicatesByContent(t *testing.T) {
	h := newIngestHarness(t, nil)
	body := testFileBody()

	first, err := h.ingestor.IngestFile(context.Background(), "a.txt", body, nil)
	require.NoError(t, err)
	chunksBefore := h.vectors.Len()

	// Same bytes under a different name: no new document, no new chunks.
	second, err := h.ingestor.IngestFile(context.Background(), "b.txt", body, nil)
	require.NoError(t, err)

	assert.True(t, second.Deduped)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, chunksBefore, h.vectors.Len())
	assert.Equal(t, 1, h.registry.Count())
}

func TestIngestFileRollsBackOnIndexFailure(t *testing.T) {
	failing := &failingVectorStore{
		VectorStore: newTestVectorStore(t),
		failures:    3,
		err:         errors.New("index unavailable"),
	}
	h := newIngestHarness(t, failing)

	_, err := h.ingestor.IngestFile(context.Background(), "a.txt", testFileBody(), nil)
	require.Error(t, err)

	assert.Equal(t, 0, h.registry.Count())
	assert.Equal(t, 0, h.vectors.Len())
	exists, err := h.docs.Exists(context.Background(), "any")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 3, failing.inserts)
}

func TestIngestFileRetriesTransientIndexFailure(t *testing.T) {
	failing := &failingVectorStore{
		VectorStore: newTestVectorStore(t),
		failures:    1,
		err:         errors.New("index unavailable"),
	}
	h := newIngestHarness(t, failing)

	res, err := h.ingestor.IngestFile(context.Background(), "a.txt", testFileBody(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, failing.inserts)
	assert.Equal(t, 1, h.registry.Count())
	assert.Equal(t, len(res.Chunks), h.vectors.Len())
}

func TestIngestFileEmbedFailureAborts(t *testing.T) {
	h := newIngestHarness(t, nil)
	h.embedder.fail = errors.New("embedder down")

	_, err := h.ingestor.IngestFile(context.Background(), "a.txt", testFileBody(), nil)
	require.Error(t, err)
	assert.Equal(t, 0, h.registry.Count())
	assert.Equal(t, 0, h.vectors.Len())
}

func TestIngestFileCancelledContext(t *testing.T) {
	h := newIngestHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ingestor.IngestFile(ctx, "a.txt", testFileBody(), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, h.registry.Count())
}
