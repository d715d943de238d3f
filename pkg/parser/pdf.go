package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	pdf "github.com/dslipak/pdf"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
)

const (
	pdfPlainText = "pdf-plain-text"
	pdfLayout    = "pdf-layout"
	pdfExternal  = "external-ocr"
)

// parsePDF runs the tiered PDF strategy: classify, then try parsers in
// tier order until one yields non-empty content. Every attempt is recorded;
// if all fail the error carries the full attempt list via ParsedDocument.
func (s *Service) parsePDF(filename string, data []byte) (*ParsedDocument, error) {
	tier := AnalyzePDF(data)
	log.Debug("pdf analysis", "file", filename, "tier", string(tier))

	var attempts []domain.ParserAttempt
	for _, name := range pdfParserOrder(tier) {
		started := time.Now()

		var (
			pages []string
			err   error
		)
		switch name {
		case pdfPlainText:
			pages, err = extractPlainText(data)
		case pdfLayout:
			pages, err = extractByRows(data)
		case pdfExternal:
			var text string
			text, err = s.runExternal(filename, data)
			if err == nil {
				pages = []string{text}
			}
		}

		if err == nil && joinedLen(pages) == 0 {
			err = fmt.Errorf("parser produced empty content")
		}
		attempts = append(attempts, attempt(name, started, err))
		if err != nil {
			continue
		}

		doc := assemblePages(pages)
		doc.FileType = domain.FileTypePDF
		doc.ContentHash = ContentHash(data)
		doc.Attempts = attempts
		return doc, nil
	}

	return &ParsedDocument{Attempts: attempts},
		fmt.Errorf("%w: all parsers failed for %s (%d attempts)", domain.ErrFileParse, filename, len(attempts))
}

// extractPlainText pulls per-page text with the default text extractor.
func extractPlainText(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			log.Warn("failed to extract pdf page text", "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// extractByRows walks positioned text rows per page, preserving reading
// order for PDFs whose plain-text stream comes out scrambled.
func extractByRows(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			log.Warn("failed to extract pdf rows", "page", i, "error", err)
			pages = append(pages, "")
			continue
		}

		var sb strings.Builder
		for _, row := range rows {
			for j, word := range row.Content {
				if j > 0 {
					sb.WriteString(" ")
				}
				sb.WriteString(word.S)
			}
			sb.WriteString("\n")
		}
		pages = append(pages, sb.String())
	}
	return pages, nil
}

// assemblePages normalizes page texts, concatenates them with page breaks,
// and records the rune span each page occupies in the result.
func assemblePages(pages []string) *ParsedDocument {
	var sb strings.Builder
	spans := make([]PageSpan, 0, len(pages))
	offset := 0

	for i, page := range pages {
		text := Normalize(page)
		runes := len([]rune(text))
		spans = append(spans, PageSpan{Page: i + 1, Start: offset, End: offset + runes})
		sb.WriteString(text)
		offset += runes
		if i < len(pages)-1 {
			sb.WriteString("\n")
			offset++
		}
	}

	return &ParsedDocument{
		Content:    sb.String(),
		TotalPages: len(pages),
		Pages:      spans,
	}
}

func joinedLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
