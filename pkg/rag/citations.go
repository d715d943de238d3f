package rag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ragstack/ragserve/pkg/domain"
)

// markerPattern matches the stable citation marker forms:
// [Source: f], [Source: f, Page 3], [Source: f, Lines 10-20].
var markerPattern = regexp.MustCompile(`\[Source:\s*([^,\]]+?)\s*(?:,\s*Page\s+(\d+)\s*|,\s*Lines\s+(\d+)(?:\s*-\s*(\d+))?\s*)?\]`)

type marker struct {
	filename  string
	page      int
	lineStart int
}

func parseMarkers(answer string) []marker {
	matches := markerPattern.FindAllStringSubmatch(answer, -1)
	markers := make([]marker, 0, len(matches))
	for _, m := range matches {
		mk := marker{filename: strings.TrimSpace(m[1])}
		if m[2] != "" {
			mk.page, _ = strconv.Atoi(m[2])
		}
		if m[3] != "" {
			mk.lineStart, _ = strconv.Atoi(m[3])
		}
		markers = append(markers, mk)
	}
	return markers
}

// LinkCitations resolves the model's citation markers against the
// retrieved candidate set and returns the (possibly amended) answer with
// the citations that were actually referenced. When the model emitted no
// parseable markers, the top candidates are attached and listed in an
// appended "Sources used:" block so no answer goes out unsourced.
func LinkCitations(answer string, candidates []domain.Citation) (string, []domain.Citation) {
	if len(candidates) == 0 {
		return answer, []domain.Citation{}
	}

	markers := parseMarkers(answer)
	if len(markers) == 0 {
		return fallbackCitations(answer, candidates)
	}

	linked := make([]domain.Citation, 0, len(markers))
	seen := make(map[string]struct{})
	for _, mk := range markers {
		c, ok := resolve(mk, candidates)
		if !ok {
			continue
		}
		if _, dup := seen[c.ChunkID]; dup {
			continue
		}
		seen[c.ChunkID] = struct{}{}
		linked = append(linked, c)
	}

	if len(linked) == 0 {
		return fallbackCitations(answer, candidates)
	}
	return answer, linked
}

// resolve maps one marker to at most one candidate, by precedence:
// filename+page, filename+line start, exact filename, substring filename.
func resolve(mk marker, candidates []domain.Citation) (domain.Citation, bool) {
	if mk.page > 0 {
		for _, c := range candidates {
			if c.Filename == mk.filename && c.Page == mk.page {
				return c, true
			}
		}
	}
	if mk.lineStart > 0 {
		for _, c := range candidates {
			if c.Filename == mk.filename && c.LineStart == mk.lineStart {
				return c, true
			}
		}
	}
	for _, c := range candidates {
		if c.Filename == mk.filename {
			return c, true
		}
	}
	for _, c := range candidates {
		if strings.Contains(c.Filename, mk.filename) || strings.Contains(mk.filename, c.Filename) {
			return c, true
		}
	}
	return domain.Citation{}, false
}

const fallbackCitationCount = 3

func fallbackCitations(answer string, candidates []domain.Citation) (string, []domain.Citation) {
	n := fallbackCitationCount
	if n > len(candidates) {
		n = len(candidates)
	}
	linked := make([]domain.Citation, n)
	copy(linked, candidates[:n])

	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\nSources used:\n")
	for _, c := range linked {
		switch {
		case c.Page > 0:
			fmt.Fprintf(&sb, "- %s, Page %d\n", c.Filename, c.Page)
		case c.LineStart > 0:
			fmt.Fprintf(&sb, "- %s, Lines %d-%d\n", c.Filename, c.LineStart, c.LineEnd)
		default:
			fmt.Fprintf(&sb, "- %s\n", c.Filename)
		}
	}
	return strings.TrimRight(sb.String(), "\n"), linked
}
