package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ragstack/ragserve/pkg/domain"
)

// Retriever embeds a question and pulls ranked chunks out of the vector
// store, with threshold filtering and optional lexical reranking.
type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
}

func NewRetriever(embedder domain.Embedder, store domain.VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve runs the full retrieval sequence for a normalized request.
// The store is overfetched at 2x top_k so threshold filtering and
// reranking operate on a wide candidate set.
func (r *Retriever) Retrieve(ctx context.Context, req domain.QueryRequest) ([]domain.SearchResult, error) {
	vec, err := r.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	results, err := r.store.Search(ctx, vec, req.TopK*2, req.DocumentFilter)
	if err != nil {
		return nil, err
	}

	filtered := results[:0]
	for _, res := range results {
		if res.Similarity >= req.SimilarityThreshold {
			filtered = append(filtered, res)
		}
	}
	results = filtered

	if req.Rerank != nil && *req.Rerank {
		rerank(results, queryTerms(req.Question))
	}

	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// queryTerms extracts lowercase non-trivial (len >= 3) terms.
func queryTerms(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// rerank re-sorts by 0.7*similarity + 0.3*lexical overlap with the query.
func rerank(results []domain.SearchResult, terms []string) {
	if len(terms) == 0 || len(results) == 0 {
		return
	}

	scores := make(map[string]float64, len(results))
	for _, res := range results {
		content := strings.ToLower(res.Chunk.Content)
		matched := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matched++
			}
		}
		overlap := float64(matched) / float64(len(terms))
		scores[res.Chunk.ID] = 0.7*res.Similarity + 0.3*overlap
	}

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := scores[results[i].Chunk.ID], scores[results[j].Chunk.ID]
		if si != sj {
			return si > sj
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
}

// sourceHeader renders the per-chunk context header the model is asked to
// echo back as a citation marker.
func sourceHeader(chunk domain.Chunk) string {
	switch chunk.Source.Kind {
	case domain.SourcePage:
		return fmt.Sprintf("[Source: %s, Page %d]", chunk.Filename, chunk.Source.Page)
	case domain.SourceLines:
		return fmt.Sprintf("[Source: %s, Lines %d-%d]", chunk.Filename, chunk.Source.LineStart, chunk.Source.LineEnd)
	default:
		return fmt.Sprintf("[Source: %s]", chunk.Filename)
	}
}

// BuildContext concatenates chunk texts, each prefixed with its source
// header, as the grounded context block for the LLM.
func BuildContext(results []domain.SearchResult) string {
	var sb strings.Builder
	for i, res := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sourceHeader(res.Chunk))
		sb.WriteString("\n")
		sb.WriteString(res.Chunk.Content)
	}
	return sb.String()
}

// BuildCitations converts retrieved chunks into candidate citations with
// query-term highlighted snippets, preserving retrieval order.
func BuildCitations(results []domain.SearchResult, question string) []domain.Citation {
	terms := queryTerms(question)
	citations := make([]domain.Citation, 0, len(results))
	for _, res := range results {
		citations = append(citations, domain.Citation{
			ChunkID:   res.Chunk.ID,
			Filename:  res.Chunk.Filename,
			Page:      res.Chunk.Source.Page,
			LineStart: res.Chunk.Source.LineStart,
			LineEnd:   res.Chunk.Source.LineEnd,
			Score:     res.Similarity,
			Snippet:   highlight(snippet(res.Chunk.Content, terms), terms),
		})
	}
	return citations
}

const snippetLength = 200

// snippet picks a window of the chunk around the first query-term match,
// or the head of the chunk when nothing matches.
func snippet(content string, terms []string) string {
	runes := []rune(content)
	if len(runes) <= snippetLength {
		return content
	}

	start := 0
	for _, term := range terms {
		if idx, _ := foldIndex(content, term, 0); idx >= 0 {
			// Back off so the match sits inside the window, not at its edge.
			start = utf8.RuneCountInString(content[:idx])
			if start > snippetLength/4 {
				start -= snippetLength / 4
			} else {
				start = 0
			}
			break
		}
	}

	end := start + snippetLength
	if end > len(runes) {
		end = len(runes)
		start = end - snippetLength
	}
	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out += "…"
	}
	return out
}

// highlight wraps case-insensitive term matches in <mark> tags. A single
// left-to-right pass over the text keeps already-inserted tags from being
// re-matched by shorter terms.
func highlight(text string, terms []string) string {
	if len(terms) == 0 {
		return text
	}

	var sb strings.Builder
	pos := 0
	for pos < len(text) {
		best, bestLen := -1, 0
		for _, term := range terms {
			idx, n := foldIndex(text, term, pos)
			if idx < 0 {
				continue
			}
			if best == -1 || idx < best || (idx == best && n > bestLen) {
				best, bestLen = idx, n
			}
		}
		if best < 0 {
			sb.WriteString(text[pos:])
			break
		}
		sb.WriteString(text[pos:best])
		sb.WriteString("<mark>")
		sb.WriteString(text[best : best+bestLen])
		sb.WriteString("</mark>")
		pos = best + bestLen
	}
	return sb.String()
}

// foldIndex reports the byte offset in text of the first case-insensitive
// occurrence of term at or after start, plus the matched byte length.
// Matching lowercases rune by rune in place, so every offset indexes text
// itself even where a case mapping changes the byte length ("İ" → "i").
func foldIndex(text, term string, start int) (idx, matchLen int) {
	termRunes := []rune(term)
	if len(termRunes) == 0 {
		return -1, 0
	}
	for i := start; i < len(text); {
		if end, ok := foldMatch(text, i, termRunes); ok {
			return i, end - i
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1, 0
}

// foldMatch reports whether term matches text at pos, returning the byte
// offset just past the match.
func foldMatch(text string, pos int, term []rune) (end int, ok bool) {
	for _, want := range term {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if size == 0 {
			return 0, false
		}
		if r != want && unicode.ToLower(r) != unicode.ToLower(want) {
			return 0, false
		}
		pos += size
	}
	return pos, true
}
