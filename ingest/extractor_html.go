package ingest

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

// HTMLExtractor extracts readable article text from HTML documents.
type HTMLExtractor struct{}

var _ Extractor = (*HTMLExtractor)(nil)

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor() *HTMLExtractor { return &HTMLExtractor{} }

// ExtractPages runs readability extraction and falls back to plain tag
// stripping when no article content is found. HTML documents are a single
// page.
func (e *HTMLExtractor) ExtractPages(content []byte) ([]Page, error) {
	var text string

	u, _ := url.Parse("")
	article, err := readability.FromReader(bytes.NewReader(content), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		text = strings.TrimSpace(article.TextContent)
	} else {
		text = strings.TrimSpace(StripHTML(string(content)))
	}

	if text == "" {
		return nil, nil
	}
	return []Page{{Text: text, Number: 1}}, nil
}

// StripHTML removes tags, script and style bodies, and decodes the common
// entities. It is the fallback for documents readability cannot handle.
func StripHTML(content string) string {
	var result strings.Builder
	result.Grow(len(content))

	inTag := false
	skipDepth := 0 // inside <script> or <style>
	var tagName strings.Builder
	collectingTag := false

	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRuneInString(content[i:])

		switch {
		case r == '<':
			inTag = true
			collectingTag = true
			tagName.Reset()
		case inTag && r == '>':
			inTag = false
			collectingTag = false
			name := strings.ToLower(strings.TrimSpace(tagName.String()))
			switch name {
			case "script", "style":
				skipDepth++
			case "/script", "/style":
				if skipDepth > 0 {
					skipDepth--
				}
			case "p", "/p", "br", "br/", "div", "/div", "li", "/li":
				result.WriteByte('\n')
			}
		case inTag:
			if collectingTag {
				if r == ' ' || r == '\t' || r == '\n' {
					collectingTag = false
				} else {
					tagName.WriteRune(r)
				}
			}
		case skipDepth == 0:
			result.WriteRune(r)
		}
		i += size
	}

	return decodeEntities(result.String())
}

var entityReplacer = strings.NewReplacer(
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}
