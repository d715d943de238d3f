package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
)

func testDocument(id, hash string) domain.Document {
	return domain.Document{
		ID:          id,
		Filename:    id + ".txt",
		FileType:    domain.FileTypeText,
		ContentHash: hash,
		Size:        42,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc := testDocument("doc1", "hash1")
	require.NoError(t, r.Register(ctx, doc))

	got, ok := r.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, doc.ContentHash, got.ContentHash)

	byHash, ok := r.FindByHash("hash1")
	require.True(t, ok)
	assert.Equal(t, "doc1", byHash.ID)

	_, ok = r.FindByHash("other")
	assert.False(t, ok)
}

func TestRegistryDuplicateHashRejected(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, testDocument("doc1", "same-hash")))
	err := r.Register(ctx, testDocument("doc2", "same-hash"))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.db")
	ctx := context.Background()

	r, err := NewRegistry(path)
	require.NoError(t, err)
	require.NoError(t, r.Register(ctx, testDocument("doc1", "hash1")))
	require.NoError(t, r.UpdateChunkCount(ctx, "doc1", 7))
	require.NoError(t, r.Close())

	reopened, err := NewRegistry(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	doc, ok := reopened.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, 7, doc.TotalChunks)
	assert.Equal(t, "hash1", doc.ContentHash)
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, testDocument("doc1", "hash1")))
	require.NoError(t, r.Remove(ctx, "doc1"))

	_, ok := r.Get("doc1")
	assert.False(t, ok)
	_, ok = r.FindByHash("hash1")
	assert.False(t, ok)

	err := r.Remove(ctx, "doc1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	// The hash is free again after removal.
	assert.NoError(t, r.Register(ctx, testDocument("doc2", "hash1")))
}

func TestRegistryIDsSorted(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, testDocument("zeta", "h1")))
	require.NoError(t, r.Register(ctx, testDocument("alpha", "h2")))
	require.NoError(t, r.Register(ctx, testDocument("mid", "h3")))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, r.IDs())
	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.List(), 3)
}
