package chunker

import (
	"strings"
)

// declPrefixes lists column-zero tokens that open a top-level declaration
// for each supported language. The heuristics are deliberately shallow; a
// file whose declarations we cannot find falls back to the text chunker.
var declPrefixes = map[string][]string{
	"go":         {"func ", "type ", "var ", "const ", "package "},
	"python":     {"def ", "class ", "async def ", "@"},
	"javascript": {"function ", "class ", "const ", "let ", "var ", "export "},
	"typescript": {"function ", "class ", "const ", "let ", "var ", "export ", "interface ", "type ", "enum "},
	"java":       {"public ", "private ", "protected ", "class ", "interface ", "enum ", "@"},
	"c":          {"#include", "#define", "typedef ", "struct ", "enum ", "static ", "void ", "int "},
	"cpp":        {"#include", "#define", "typedef ", "struct ", "class ", "namespace ", "template", "static ", "void ", "int "},
	"rust":       {"fn ", "pub ", "struct ", "enum ", "impl ", "trait ", "mod ", "use ", "#["},
	"ruby":       {"def ", "class ", "module ", "require "},
	"php":        {"function ", "class ", "interface ", "trait ", "namespace ", "use "},
	"csharp":     {"public ", "private ", "internal ", "class ", "interface ", "namespace ", "using "},
	"kotlin":     {"fun ", "class ", "object ", "interface ", "val ", "var ", "import "},
	"swift":      {"func ", "class ", "struct ", "enum ", "extension ", "protocol ", "import "},
	"scala":      {"def ", "class ", "object ", "trait ", "import "},
}

// splitCode chunks source code along top-level declaration boundaries,
// packing consecutive declarations until the window fills. Returns nil when
// the language is unknown or too few boundaries exist, so the caller can
// degrade to the sliding window.
func (c *Chunker) splitCode(runes []rune, language string) []span {
	prefixes, ok := declPrefixes[language]
	if !ok {
		return nil
	}

	boundaries := codeBoundaries(runes, prefixes)
	if len(boundaries) < 2 {
		return nil
	}

	// Segment offsets: each boundary starts a segment running to the next
	// boundary. Leading text before the first boundary joins segment 0.
	if boundaries[0] != 0 {
		boundaries = append([]int{0}, boundaries...)
	}

	var spans []span
	segStart := boundaries[0]
	for i := 1; i <= len(boundaries); i++ {
		segEnd := len(runes)
		if i < len(boundaries) {
			segEnd = boundaries[i]
		}
		if segEnd-segStart >= c.cfg.ChunkSize || i == len(boundaries) {
			spans = append(spans, span{start: segStart, end: segEnd})
			segStart = segEnd
		}
	}

	// Merge a trailing sliver into its predecessor rather than emitting a
	// sub-minimum chunk.
	if n := len(spans); n >= 2 {
		last := spans[n-1]
		text := strings.TrimSpace(string(runes[last.start:last.end]))
		if len([]rune(text)) < c.cfg.MinChunkSize {
			spans[n-2].end = last.end
			spans = spans[:n-1]
		}
	}
	return spans
}

// codeBoundaries returns rune offsets of lines that begin a top-level
// declaration (no leading indentation, matching a language prefix).
func codeBoundaries(runes []rune, prefixes []string) []int {
	var boundaries []int
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i == len(runes) || runes[i] == '\n' {
			line := string(runes[lineStart:i])
			if len(line) > 0 && line[0] != ' ' && line[0] != '\t' {
				for _, p := range prefixes {
					if strings.HasPrefix(line, p) {
						boundaries = append(boundaries, lineStart)
						break
					}
				}
			}
			lineStart = i + 1
		}
	}
	return boundaries
}
