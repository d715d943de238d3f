// Package parser turns raw uploaded bytes into normalized text documents
// with page or line provenance hints. Binary formats go through a tiered
// strategy: a lightweight analysis pass classifies the file, then parsers
// are tried in tier-appropriate order until one yields content.
package parser

import (
	"time"

	"github.com/ragstack/ragserve/pkg/domain"
)

// FileTier classifies input difficulty and selects the parser order.
type FileTier string

const (
	TierSimpleText     FileTier = "simple-text"
	TierTextWithLayout FileTier = "text-with-layout"
	TierScannedImage   FileTier = "scanned-image"
	TierCorrupt        FileTier = "corrupt"
)

// PageSpan maps one page of a paginated document onto a rune range of the
// normalized content. End is exclusive.
type PageSpan struct {
	Page  int
	Start int
	End   int
}

// ParsedDocument is the parser output handed to the chunker.
type ParsedDocument struct {
	Content      string
	FileType     domain.FileType
	Language     string
	ContentHash  string
	TotalPages   int
	Pages        []PageSpan // non-empty only for paginated formats
	LineOriented bool
	Attempts     []domain.ParserAttempt
}

// ExternalCommand configures the external parser/OCR fallback. The command
// receives the input file path as its last argument and must print extracted
// text to stdout.
type ExternalCommand struct {
	Enabled bool
	Command string
	Args    []string
	Timeout time.Duration
}

// Service dispatches files to format parsers by extension with magic-byte
// confirmation for binary formats.
type Service struct {
	external ExternalCommand
}

func New(external ExternalCommand) *Service {
	return &Service{external: external}
}

func attempt(name string, started time.Time, err error) domain.ParserAttempt {
	rec := domain.ParserAttempt{Name: name, Started: started, Ended: time.Now()}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
