package rag

import (
	"fmt"
	"strings"

	"github.com/ragstack/ragserve/pkg/domain"
)

const promptPreamble = `You are a precise assistant that answers strictly from the provided context.

Rules:
- Answer using only facts found in the context below.
- Cite every fact with the marker of the chunk it came from, exactly as written: [Source: filename, Page N] or [Source: filename, Lines A-B] or [Source: filename].
- If the context does not contain enough information to answer, say you do not know. Do not guess.`

// BuildPrompt renders the grounded prompt: preamble, context block, an
// optional learning block of prior Q&A pairs, and the user question.
func BuildPrompt(question, context string, examples []domain.QAInteraction) string {
	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(context)

	if len(examples) > 0 {
		sb.WriteString("\n\nPreviously answered questions for reference:\n")
		for _, ex := range examples {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", ex.Question, ex.Answer)
		}
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}
