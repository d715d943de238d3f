package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragstack/ragserve/pkg/domain"
)

func newTestParser() *Service {
	return New(ExternalCommand{})
}

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		filename string
		data     []byte
		wantType domain.FileType
		wantLang string
		wantErr  error
	}{
		{"report.pdf", []byte("%PDF-1.7 ..."), domain.FileTypePDF, "", nil},
		{"notes.txt", []byte("hello"), domain.FileTypeText, "", nil},
		{"app.log", []byte("line"), domain.FileTypeText, "", nil},
		{"README.md", []byte("# h"), domain.FileTypeMarkdown, "", nil},
		{"index.html", []byte("<p>x</p>"), domain.FileTypeHTML, "", nil},
		{"main.go", []byte("package main"), domain.FileTypeCode, "go", nil},
		{"script.py", []byte("def f():"), domain.FileTypeCode, "python", nil},
		{"slides.pptx", []byte("PK\x03\x04rest"), domain.FileTypeOffice, "", nil},
		{"legacy.doc", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0x00}, domain.FileTypeOffice, "", nil},
		{"image.png", []byte{0x89, 0x50}, "", "", domain.ErrUnsupportedFileType},
		{"fake.pdf", []byte("not a pdf"), "", "", domain.ErrFileParse},
		{"fake.docx", []byte("plain text"), "", "", domain.ErrFileParse},
	}
	for _, tt := range tests {
		ft, lang, err := DetectFileType(tt.filename, tt.data)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.filename)
			continue
		}
		require.NoError(t, err, tt.filename)
		assert.Equal(t, tt.wantType, ft, tt.filename)
		assert.Equal(t, tt.wantLang, lang, tt.filename)
	}
}

func TestNormalize(t *testing.T) {
	in := "\uFEFFfirst line  \r\nsecond\rthird\t\n"
	out := Normalize(in)

	assert.Equal(t, "first line\nsecond\nthird\n", out)
}

func TestNormalizeNFC(t *testing.T) {
	// e + combining acute composes to a single code point.
	decomposed := "café"
	assert.Equal(t, "café", Normalize(decomposed))
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash([]byte("same bytes"))
	b := ContentHash([]byte("same bytes"))
	c := ContentHash([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestParsePlainText(t *testing.T) {
	p := newTestParser()
	doc, err := p.Parse("notes.txt", []byte("alpha\r\nbeta\r\n"))
	require.NoError(t, err)

	assert.Equal(t, "alpha\nbeta\n", doc.Content)
	assert.Equal(t, domain.FileTypeText, doc.FileType)
	assert.True(t, doc.LineOriented)
	assert.Empty(t, doc.Pages)
	require.Len(t, doc.Attempts, 1)
	assert.Equal(t, "text", doc.Attempts[0].Name)
	assert.Empty(t, doc.Attempts[0].Error)
}

func TestParseCodeCarriesLanguage(t *testing.T) {
	p := newTestParser()
	doc, err := p.Parse("main.go", []byte("package main\n\nfunc main() {}\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.FileTypeCode, doc.FileType)
	assert.Equal(t, "go", doc.Language)
	assert.True(t, doc.LineOriented)
}

func TestParseRejectsInvalidUTF8(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse("bad.txt", []byte{0xFF, 0xFE, 0xFD})
	require.ErrorIs(t, err, domain.ErrFileParse)
}

func TestParseEmptyFile(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse("empty.txt", nil)
	require.ErrorIs(t, err, domain.ErrFileParse)
}

func TestParseUnsupportedExtension(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse("archive.tar", []byte("data"))
	require.ErrorIs(t, err, domain.ErrUnsupportedFileType)
}

func TestParseHTMLToMarkdown(t *testing.T) {
	p := newTestParser()
	html := `<html><head><style>p{color:red}</style></head>
<body><h1>Title</h1><p>First paragraph.</p><script>alert(1)</script></body></html>`

	doc, err := p.Parse("page.html", []byte(html))
	require.NoError(t, err)

	assert.Equal(t, domain.FileTypeHTML, doc.FileType)
	assert.Contains(t, doc.Content, "Title")
	assert.Contains(t, doc.Content, "First paragraph.")
	assert.NotContains(t, doc.Content, "alert(1)")
	assert.NotContains(t, doc.Content, "color:red")
}

func TestParseCorruptPDFFailsWithAttempts(t *testing.T) {
	p := newTestParser()
	doc, err := p.Parse("broken.pdf", []byte("%PDF-1.4\ngarbage, no xref"))
	require.ErrorIs(t, err, domain.ErrFileParse)

	// The tiered attempt trail survives the failure for job reporting.
	require.NotNil(t, doc)
	assert.NotEmpty(t, doc.Attempts)
	for _, a := range doc.Attempts {
		assert.NotEmpty(t, a.Error)
	}
}

func TestParseOfficeWithoutExternalParser(t *testing.T) {
	p := newTestParser()
	_, err := p.Parse("deck.pptx", []byte("PK\x03\x04fakezip"))
	require.ErrorIs(t, err, domain.ErrFileParse)
}

func TestExtractHTMLTextStripsScripts(t *testing.T) {
	text, err := extractHTMLText([]byte(`<body><p>keep</p><script>drop()</script></body>`))
	require.NoError(t, err)

	assert.Contains(t, text, "keep")
	assert.NotContains(t, text, "drop()")
}

func TestNormalizeIdempotent(t *testing.T) {
	in := strings.Repeat("line with trailing \t\n", 3)
	once := Normalize(in)
	assert.Equal(t, once, Normalize(once))
}
