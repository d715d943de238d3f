package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
)

func TestLocalDocStoreRoundTrip(t *testing.T) {
	s, err := NewLocalDocStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Store(ctx, "doc1", []byte{0x25, 0x50, 0x44, 0x46}, "extracted text")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.Contains(t, uri, "doc1")

	raw, err := s.GetRaw(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x25, 0x50, 0x44, 0x46}, raw)

	text, err := s.GetText(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	exists, err := s.Exists(ctx, "doc1")
	require.NoError(t, err)
	assert.True(t, exists)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, ids)
}

func TestLocalDocStoreMissingDocument(t *testing.T) {
	s, err := NewLocalDocStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.GetRaw(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	_, err = s.GetText(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	exists, err := s.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalDocStoreDelete(t *testing.T) {
	s, err := NewLocalDocStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Store(ctx, "doc1", []byte("raw"), "text")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "doc1"))

	exists, err := s.Exists(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, exists)

	// Deleting an absent document is not an error.
	assert.NoError(t, s.Delete(ctx, "doc1"))
}
