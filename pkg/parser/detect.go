package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ragstack/ragserve/pkg/domain"
)

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// codeLanguages maps source file extensions to a language tag used by the
// code chunker's boundary heuristics.
var codeLanguages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".rs":    "rust",
	".rb":    "ruby",
	".php":   "php",
	".cs":    "csharp",
	".kt":    "kotlin",
	".swift": "swift",
	".sh":    "shell",
	".sql":   "sql",
}

var officeExtensions = map[string]bool{
	".doc": true, ".docx": true,
	".ppt": true, ".pptx": true,
	".xls": true, ".xlsx": true,
	".odt": true, ".odp": true, ".ods": true,
}

// DetectFileType resolves the file type from the filename extension, with
// magic-byte confirmation for binary formats. A .pdf without the PDF header
// is a parse error, not a silent reinterpretation.
func DetectFileType(filename string, data []byte) (domain.FileType, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case ext == ".pdf":
		if !bytes.HasPrefix(data, pdfMagic) {
			return "", "", fmt.Errorf("%w: %s has .pdf extension but no PDF header", domain.ErrFileParse, filename)
		}
		return domain.FileTypePDF, "", nil

	case ext == ".txt" || ext == ".text" || ext == ".log":
		return domain.FileTypeText, "", nil

	case ext == ".md" || ext == ".markdown":
		return domain.FileTypeMarkdown, "", nil

	case ext == ".html" || ext == ".htm":
		return domain.FileTypeHTML, "", nil

	case officeExtensions[ext]:
		if !bytes.HasPrefix(data, zipMagic) && !bytes.HasPrefix(data, oleMagic) {
			return "", "", fmt.Errorf("%w: %s is not a recognized office container", domain.ErrFileParse, filename)
		}
		return domain.FileTypeOffice, "", nil

	default:
		if lang, ok := codeLanguages[ext]; ok {
			return domain.FileTypeCode, lang, nil
		}
		return "", "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, ext)
	}
}
