package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragstack/ragserve/pkg/domain"
)

func TestBuildPromptStructure(t *testing.T) {
	prompt := BuildPrompt("What is photosynthesis?", "[Source: bio.txt]\nPlants convert light.", nil)

	assert.Contains(t, prompt, "only facts found in the context")
	assert.Contains(t, prompt, "[Source: bio.txt]\nPlants convert light.")
	assert.Contains(t, prompt, "say you do not know")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is photosynthesis?\nAnswer:"))
	assert.NotContains(t, prompt, "Previously answered questions")
}

func TestBuildPromptLearningBlock(t *testing.T) {
	examples := []domain.QAInteraction{
		{Question: "What is RAG?", Answer: "Retrieval augmented generation."},
		{Question: "How do embeddings work?", Answer: "They map text to vectors."},
	}
	prompt := BuildPrompt("What is retrieval?", "ctx", examples)

	assert.Contains(t, prompt, "Previously answered questions for reference:")
	assert.Contains(t, prompt, "Q: What is RAG?\nA: Retrieval augmented generation.")
	assert.Contains(t, prompt, "Q: How do embeddings work?")

	// Learning block sits between the context and the question.
	ctxPos := strings.Index(prompt, "Context:")
	learnPos := strings.Index(prompt, "Previously answered")
	qPos := strings.LastIndex(prompt, "Question:")
	assert.Less(t, ctxPos, learnPos)
	assert.Less(t, learnPos, qPos)
}

func TestSourceHeaderForms(t *testing.T) {
	assert.Equal(t, "[Source: a.pdf, Page 2]", sourceHeader(domain.Chunk{
		Filename: "a.pdf",
		Source:   domain.ChunkSource{Kind: domain.SourcePage, Page: 2},
	}))
	assert.Equal(t, "[Source: a.go, Lines 5-9]", sourceHeader(domain.Chunk{
		Filename: "a.go",
		Source:   domain.ChunkSource{Kind: domain.SourceLines, LineStart: 5, LineEnd: 9},
	}))
	assert.Equal(t, "[Source: a.docx]", sourceHeader(domain.Chunk{
		Filename: "a.docx",
		Source:   domain.ChunkSource{Kind: domain.SourceOffset, Offset: 0, Length: 10},
	}))
}
