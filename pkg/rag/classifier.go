// Package rag composes the retrieval pipeline: query classification,
// vector retrieval, prompt construction, citation linking, ingestion
// orchestration, and the answer cache glue.
package rag

import "strings"

// QueryType says how an input should be handled: as a natural-language
// question for the RAG pipeline, or as a literal string search over
// stored document text.
type QueryType string

const (
	QueryQuestion     QueryType = "question"
	QueryStringSearch QueryType = "string_search"
)

var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {},
	"which": {}, "can": {}, "could": {}, "would": {}, "should": {},
	"is": {}, "are": {}, "do": {}, "does": {},
	"explain": {}, "describe": {}, "tell": {}, "show": {}, "find": {}, "list": {},
}

// Classify decides question-vs-literal-search. Short keyword-style inputs
// go to string search; anything phrased like a question, or long enough
// to read like one, goes to the LLM pipeline.
func Classify(input string) QueryType {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return QueryStringSearch
	}
	if strings.HasSuffix(trimmed, "?") {
		return QueryQuestion
	}

	tokens := strings.Fields(strings.ToLower(trimmed))
	if len(tokens) == 0 {
		return QueryStringSearch
	}
	if _, ok := questionWords[tokens[0]]; ok {
		return QueryQuestion
	}
	if len(tokens) >= 5 {
		return QueryQuestion
	}
	return QueryStringSearch
}
