package ingest

import (
	"path/filepath"
	"strings"
)

// Page is one unit of extracted document text with its 1-indexed page
// number and an optional preview image.
type Page struct {
	Text   string
	Number int
	Image  []byte
}

// Extractor converts raw document bytes into ordered pages. A document that
// yields no text produces an empty page sequence, not an error; errors are
// reserved for unreadable containers.
type Extractor interface {
	ExtractPages(content []byte) ([]Page, error)
}

// ContentType identifies the kind of content for extraction.
type ContentType string

const (
	TypePlainText ContentType = "text/plain"
	TypeHTML      ContentType = "text/html"
	TypeMarkdown  ContentType = "text/markdown"
	TypePDF       ContentType = "application/pdf"
)

// ContentTypeFromExtension maps file extensions to content types.
func ContentTypeFromExtension(ext string) ContentType {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return TypePDF
	case "html", "htm":
		return TypeHTML
	case "md", "markdown":
		return TypeMarkdown
	default:
		return TypePlainText
	}
}

// ExtractorForFilename picks an extractor from the filename extension.
func ExtractorForFilename(name string) Extractor {
	switch ContentTypeFromExtension(filepath.Ext(name)) {
	case TypePDF:
		return NewPDFExtractor()
	case TypeHTML:
		return NewHTMLExtractor()
	case TypeMarkdown:
		return NewMarkdownExtractor()
	default:
		return PlainTextExtractor{}
	}
}

// PlainTextExtractor treats the whole document as a single page of text.
type PlainTextExtractor struct{}

var _ Extractor = PlainTextExtractor{}

// ExtractPages returns the content as page 1.
func (PlainTextExtractor) ExtractPages(content []byte) ([]Page, error) {
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}
	return []Page{{Text: text, Number: 1}}, nil
}
