package parser

import (
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/ragstack/ragserve/pkg/domain"
)

const (
	htmlMarkdown = "html-markdown"
	htmlTextOnly = "html-text"
)

// parseHTML converts markup to markdown so headings and lists survive
// chunking; when conversion fails it falls back to a bare text extraction.
func (s *Service) parseHTML(filename string, data []byte) (*ParsedDocument, error) {
	var attempts []domain.ParserAttempt

	started := time.Now()
	markdown, err := htmltomarkdown.ConvertString(string(data))
	if err == nil && strings.TrimSpace(markdown) == "" {
		err = fmt.Errorf("conversion produced empty content")
	}
	attempts = append(attempts, attempt(htmlMarkdown, started, err))
	if err == nil {
		return htmlResult(markdown, data, attempts), nil
	}

	started = time.Now()
	text, err := extractHTMLText(data)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("document has no text content")
	}
	attempts = append(attempts, attempt(htmlTextOnly, started, err))
	if err != nil {
		return &ParsedDocument{Attempts: attempts},
			fmt.Errorf("%w: %s: %v", domain.ErrFileParse, filename, err)
	}

	return htmlResult(text, data, attempts), nil
}

func htmlResult(content string, raw []byte, attempts []domain.ParserAttempt) *ParsedDocument {
	return &ParsedDocument{
		Content:      Normalize(content),
		FileType:     domain.FileTypeHTML,
		ContentHash:  ContentHash(raw),
		LineOriented: true,
		Attempts:     attempts,
	}
}

// extractHTMLText strips script/style nodes and returns visible text.
func extractHTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Text(), nil
	}

	var sb strings.Builder
	body.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return body.Text(), nil
	}
	return sb.String(), nil
}
