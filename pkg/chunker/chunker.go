// Package chunker slices parsed documents into overlapping, boundary-aware
// chunks and maps each chunk back to its page or line provenance.
package chunker

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/parser"
)

type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	MinChunkSize     int
	RespectSentences bool
}

type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1024
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinChunkSize < 0 {
		cfg.MinChunkSize = 0
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits a parsed document into ordered chunks with dense ordinals
// starting at 0. Code files go through the declaration-aware splitter and
// degrade to the sliding window when no boundaries are found.
func (c *Chunker) Chunk(doc domain.Document, parsed *parser.ParsedDocument) ([]domain.Chunk, error) {
	content := strings.TrimRight(parsed.Content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("document has no content to chunk")
	}

	runes := []rune(content)

	var spans []span
	if parsed.FileType == domain.FileTypeCode {
		spans = c.splitCode(runes, parsed.Language)
	}
	if spans == nil {
		spans = c.slidingWindow(runes)
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, sp := range spans {
		text := strings.TrimSpace(string(runes[sp.start:sp.end]))
		if text == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:         fmt.Sprintf("%s_%d", doc.ID, len(chunks)),
			DocumentID: doc.ID,
			Index:      len(chunks),
			Content:    text,
			Source:     resolveSource(parsed, runes, sp.start, sp.end),
			Filename:   doc.Filename,
		})
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("all windows fell below the minimum chunk size")
	}
	return chunks, nil
}

// span is a half-open rune range of the document content.
type span struct {
	start, end int
}

// slidingWindow walks the text in steps of chunkSize-overlap, optionally
// snapping each window end forward to a sentence boundary.
func (c *Chunker) slidingWindow(runes []rune) []span {
	total := len(runes)
	step := c.cfg.ChunkSize - c.cfg.ChunkOverlap

	var spans []span
	prevEnd := 0
	for start := 0; start < total; start += step {
		end := start + c.cfg.ChunkSize
		if end > total {
			end = total
		} else if c.cfg.RespectSentences {
			end = c.snapForward(runes, end, start+c.cfg.ChunkSize*5/4)
		}

		text := strings.TrimSpace(string(runes[start:end]))
		last := end >= total

		// Short windows are dropped, except a final window that still
		// carries text no earlier chunk covered.
		keep := len([]rune(text)) >= c.cfg.MinChunkSize
		if !keep && last && (len(spans) == 0 || end > prevEnd) {
			keep = true
		}
		if keep && text != "" {
			spans = append(spans, span{start: start, end: end})
			prevEnd = end
		}
		if last {
			break
		}
	}
	return spans
}

// snapForward extends end to just past the next sentence terminator
// ([.!?] followed by whitespace or EOF) within bound, falling back to the
// next whitespace, and leaving end untouched when neither is in range.
func (c *Chunker) snapForward(runes []rune, end, bound int) int {
	if bound > len(runes) {
		bound = len(runes)
	}
	for i := end; i < bound; i++ {
		if isSentenceEnd(runes[i]) {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				return i + 1
			}
		}
	}
	for i := end; i < bound; i++ {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// resolveSource maps a chunk's rune range back to the parser's provenance
// hints: page for paginated input, line range for line-oriented input, raw
// offset otherwise.
func resolveSource(parsed *parser.ParsedDocument, runes []rune, start, end int) domain.ChunkSource {
	if len(parsed.Pages) > 0 {
		idx := sort.Search(len(parsed.Pages), func(i int) bool {
			return parsed.Pages[i].End > start
		})
		page := parsed.Pages[len(parsed.Pages)-1].Page
		if idx < len(parsed.Pages) {
			page = parsed.Pages[idx].Page
		}
		return domain.ChunkSource{Kind: domain.SourcePage, Page: page}
	}

	if parsed.LineOriented {
		lineStart := 1
		for i := 0; i < start && i < len(runes); i++ {
			if runes[i] == '\n' {
				lineStart++
			}
		}
		lineEnd := lineStart
		for i := start; i < end-1 && i < len(runes); i++ {
			if runes[i] == '\n' {
				lineEnd++
			}
		}
		return domain.ChunkSource{Kind: domain.SourceLines, LineStart: lineStart, LineEnd: lineEnd}
	}

	return domain.ChunkSource{Kind: domain.SourceOffset, Offset: start, Length: end - start}
}
