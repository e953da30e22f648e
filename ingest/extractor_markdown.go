package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// MarkdownExtractor converts markdown to plain text by walking the parsed
// AST and collecting text content, with block boundaries preserved as
// paragraph breaks so chunking still sees the document structure.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

var _ Extractor = (*MarkdownExtractor)(nil)

// NewMarkdownExtractor creates a markdown extractor.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

// ExtractPages parses the markdown and returns its text content as page 1.
func (e *MarkdownExtractor) ExtractPages(content []byte) ([]Page, error) {
	doc := e.md.Parser().Parse(gmtext.NewReader(content))

	var buf strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(content))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if !entering {
				buf.WriteString("\n\n")
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(content))
				}
				buf.WriteString("\n\n")
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(content))
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil, nil
	}
	return []Page{{Text: text, Number: 1}}, nil
}
