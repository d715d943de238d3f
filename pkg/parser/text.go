package parser

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ragstack/ragserve/pkg/domain"
)

// parseText handles plain text, markdown, and source code. All three are
// line-oriented; the only difference the rest of the pipeline cares about
// is the file type and, for code, the language tag.
func (s *Service) parseText(fileType domain.FileType, language string, data []byte) (*ParsedDocument, error) {
	started := time.Now()

	var err error
	if !utf8.Valid(data) {
		err = fmt.Errorf("not valid UTF-8")
	}
	rec := attempt("text", started, err)
	if err != nil {
		return &ParsedDocument{Attempts: []domain.ParserAttempt{rec}},
			fmt.Errorf("%w: %v", domain.ErrFileParse, err)
	}

	return &ParsedDocument{
		Content:      Normalize(string(data)),
		FileType:     fileType,
		Language:     language,
		ContentHash:  ContentHash(data),
		LineOriented: true,
		Attempts:     []domain.ParserAttempt{rec},
	}, nil
}

// parseOffice delegates office containers to the external parser; there is
// no native decoder for them. Output is opaque text with offset provenance.
func (s *Service) parseOffice(filename string, data []byte) (*ParsedDocument, error) {
	started := time.Now()
	text, err := s.runExternal(filename, data)
	rec := attempt(pdfExternal, started, err)
	if err != nil {
		return &ParsedDocument{Attempts: []domain.ParserAttempt{rec}},
			fmt.Errorf("%w: %s: %v", domain.ErrFileParse, filename, err)
	}

	return &ParsedDocument{
		Content:     Normalize(text),
		FileType:    domain.FileTypeOffice,
		ContentHash: ContentHash(data),
		Attempts:    []domain.ParserAttempt{rec},
	}, nil
}
