package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/parser"
)

func textDoc(content string) *parser.ParsedDocument {
	return &parser.ParsedDocument{
		Content:      content,
		FileType:     domain.FileTypeText,
		LineOriented: true,
	}
}

func TestChunkSlidingWindowCount(t *testing.T) {
	c := New(Config{ChunkSize: 1024, ChunkOverlap: 200, MinChunkSize: 100})

	content := strings.Repeat("abcdefghij", 250) // 2500 chars, no whitespace
	doc := domain.Document{ID: "doc1", Filename: "notes.txt"}

	chunks, err := c.Chunk(doc, textDoc(content))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "doc1", ch.DocumentID)
		assert.Equal(t, "notes.txt", ch.Filename)
	}
	assert.Equal(t, 1024, len([]rune(chunks[0].Content)))
	assert.Equal(t, 1024, len([]rune(chunks[1].Content)))
	assert.Equal(t, 2500-2*824, len([]rune(chunks[2].Content)))
}

func TestChunkOverlapIsShared(t *testing.T) {
	c := New(Config{ChunkSize: 1024, ChunkOverlap: 200, MinChunkSize: 100})

	content := strings.Repeat("abcdefghij", 250)
	chunks, err := c.Chunk(domain.Document{ID: "d"}, textDoc(content))
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Content)
		cur := []rune(chunks[i].Content)
		tail := string(prev[len(prev)-200:])
		head := string(cur[:200])
		assert.Equal(t, tail, head, "chunk %d should share its head with chunk %d's tail", i, i-1)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	c := New(Config{ChunkSize: 300, ChunkOverlap: 60, MinChunkSize: 20})

	content := strings.Repeat("0123456789", 95) // 950 chars
	chunks, err := c.Chunk(domain.Document{ID: "d"}, textDoc(content))
	require.NoError(t, err)

	// Rebuild the document by appending each chunk minus its overlap with
	// the previous one; no character may be lost.
	rebuilt := chunks[0].Content
	for i := 1; i < len(chunks); i++ {
		cur := []rune(chunks[i].Content)
		overlap := len(rebuilt) - (i * (300 - 60))
		require.True(t, overlap >= 0 && overlap <= len(cur))
		rebuilt += string(cur[overlap:])
	}
	assert.Equal(t, content, rebuilt)
}

func TestChunkSentenceSnapping(t *testing.T) {
	c := New(Config{ChunkSize: 200, ChunkOverlap: 40, MinChunkSize: 10, RespectSentences: true})

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The fox jumps over dogs. ")
	}
	chunks, err := c.Chunk(domain.Document{ID: "d"}, textDoc(sb.String()))
	require.NoError(t, err)
	require.True(t, len(chunks) > 1)

	for i, ch := range chunks[:len(chunks)-1] {
		last := ch.Content[len(ch.Content)-1]
		assert.Contains(t, ".!?", string(last), "chunk %d should end at a sentence boundary", i)
	}
}

func TestChunkShortDocumentKept(t *testing.T) {
	c := New(Config{ChunkSize: 1024, ChunkOverlap: 200, MinChunkSize: 100})

	chunks, err := c.Chunk(domain.Document{ID: "d"}, textDoc("just a couple of words"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "just a couple of words", chunks[0].Content)
}

func TestChunkEmptyContent(t *testing.T) {
	c := New(Config{ChunkSize: 1024, ChunkOverlap: 200})

	_, err := c.Chunk(domain.Document{ID: "d"}, textDoc("   \n\n  "))
	assert.Error(t, err)
}

func TestChunkLineProvenance(t *testing.T) {
	c := New(Config{ChunkSize: 30, ChunkOverlap: 5, MinChunkSize: 5})

	content := "line one here\nline two here\nline three here\nline four here\nline five here"
	chunks, err := c.Chunk(domain.Document{ID: "d"}, textDoc(content))
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	first := chunks[0].Source
	assert.Equal(t, domain.SourceLines, first.Kind)
	assert.Equal(t, 1, first.LineStart)
	assert.True(t, first.LineEnd >= first.LineStart)

	last := chunks[len(chunks)-1].Source
	assert.True(t, last.LineStart > 1)
}

func TestChunkPageProvenance(t *testing.T) {
	c := New(Config{ChunkSize: 40, ChunkOverlap: 10, MinChunkSize: 5})

	pageOne := strings.Repeat("a", 50)
	pageTwo := strings.Repeat("b", 50)
	parsed := &parser.ParsedDocument{
		Content:    pageOne + "\n" + pageTwo,
		FileType:   domain.FileTypePDF,
		TotalPages: 2,
		Pages: []parser.PageSpan{
			{Page: 1, Start: 0, End: 50},
			{Page: 2, Start: 51, End: 101},
		},
	}

	chunks, err := c.Chunk(domain.Document{ID: "d"}, parsed)
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	assert.Equal(t, domain.SourcePage, chunks[0].Source.Kind)
	assert.Equal(t, 1, chunks[0].Source.Page)
	assert.Equal(t, 2, chunks[len(chunks)-1].Source.Page)
}

func TestChunkOffsetProvenance(t *testing.T) {
	c := New(Config{ChunkSize: 40, ChunkOverlap: 10, MinChunkSize: 5})

	parsed := &parser.ParsedDocument{
		Content:  strings.Repeat("x", 100),
		FileType: domain.FileTypeOffice,
	}
	chunks, err := c.Chunk(domain.Document{ID: "d"}, parsed)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceOffset, chunks[0].Source.Kind)
	assert.Equal(t, 0, chunks[0].Source.Offset)
	assert.Equal(t, 40, chunks[0].Source.Length)
}

func TestChunkCodeDeclarations(t *testing.T) {
	c := New(Config{ChunkSize: 60, ChunkOverlap: 0, MinChunkSize: 10})

	src := `package main

func one() {
	a := 1
	_ = a
}

func two() {
	b := 2
	_ = b
}

func three() {
	c := 3
	_ = c
}
`
	parsed := &parser.ParsedDocument{
		Content:      src,
		FileType:     domain.FileTypeCode,
		Language:     "go",
		LineOriented: true,
	}
	chunks, err := c.Chunk(domain.Document{ID: "d"}, parsed)
	require.NoError(t, err)
	require.True(t, len(chunks) >= 2)

	for i, ch := range chunks {
		first := strings.SplitN(ch.Content, "\n", 2)[0]
		matched := false
		for _, p := range []string{"package ", "func ", "type ", "var ", "const "} {
			if strings.HasPrefix(first, p) {
				matched = true
				break
			}
		}
		assert.True(t, matched, "chunk %d should start at a declaration, got %q", i, first)
	}
}

func TestChunkCodeUnknownLanguageFallsBack(t *testing.T) {
	c := New(Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 5})

	parsed := &parser.ParsedDocument{
		Content:      strings.Repeat("z", 120),
		FileType:     domain.FileTypeCode,
		Language:     "brainfuck",
		LineOriented: true,
	}
	chunks, err := c.Chunk(domain.Document{ID: "d"}, parsed)
	require.NoError(t, err)
	assert.True(t, len(chunks) >= 2)
}
