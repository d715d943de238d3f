package parser

import (
	"fmt"

	"github.com/ragstack/ragserve/pkg/domain"
)

// Parse decodes raw bytes into a normalized text document. Dispatch is by
// filename extension with magic-byte confirmation for binary formats.
func (s *Service) Parse(filename string, data []byte) (*ParsedDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrFileParse, filename)
	}

	fileType, language, err := DetectFileType(filename, data)
	if err != nil {
		return nil, err
	}

	switch fileType {
	case domain.FileTypePDF:
		return s.parsePDF(filename, data)
	case domain.FileTypeHTML:
		return s.parseHTML(filename, data)
	case domain.FileTypeOffice:
		return s.parseOffice(filename, data)
	default:
		return s.parseText(fileType, language, data)
	}
}
