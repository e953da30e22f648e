// Package ingest converts raw documents into indexed, searchable chunks:
// text cleanup, boundary-aware chunking, page-preserving extraction, and the
// batched embedding pipeline with background task tracking.
package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxChars bounds a chunk's length.
	DefaultMaxChars = 800
	// DefaultMinChars is the noise floor: shorter chunks are dropped.
	DefaultMinChars = 50
)

// ChunkerOption configures chunking.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	maxChars int
	minChars int
}

func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{maxChars: DefaultMaxChars, minChars: DefaultMinChars}
}

// WithMaxChars sets the maximum characters per chunk.
func WithMaxChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.maxChars = n }
}

// WithMinChars sets the minimum chunk length; shorter chunks are dropped as
// noise.
func WithMinChars(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.minChars = n }
}

var (
	carriageRe  = regexp.MustCompile(`\r\n?`)
	multiLineRe = regexp.MustCompile(`\n{3,}`)
	hyphenRe    = regexp.MustCompile(`(\w)-\n(\w)`)
	spaceRunRe  = regexp.MustCompile(` +`)
	sentenceRe  = regexp.MustCompile(`[.!?]+\s+`)
)

// CleanText normalizes extracted text before chunking: NFC unicode form,
// carriage returns collapsed to newlines, runs of 3+ newlines collapsed to a
// blank line, hyphenated line-break splits rejoined, space runs collapsed,
// surrounding whitespace trimmed.
func CleanText(text string) string {
	text = norm.NFC.String(text)
	text = carriageRe.ReplaceAllString(text, "\n")
	text = multiLineRe.ReplaceAllString(text, "\n\n")
	text = hyphenRe.ReplaceAllString(text, "$1$2")
	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ChunkText splits text into bounded chunks that respect semantic
// boundaries. Paragraphs within the size bound pass verbatim; longer ones
// are split on sentence-terminal punctuation with a greedy running buffer; a
// single over-long sentence is wrapped at word boundaries, never inside a
// word. Chunks below the noise floor are dropped. Empty or whitespace-only
// input yields nil.
func ChunkText(text string, opts ...ChunkerOption) []string {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= cfg.maxChars {
			chunks = append(chunks, para)
			continue
		}
		chunks = append(chunks, splitParagraph(para, cfg.maxChars)...)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if len(c) >= cfg.minChars {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// splitParagraph splits an over-long paragraph on sentence boundaries,
// greedily packing sentences into chunks up to maxChars.
func splitParagraph(para string, maxChars int) []string {
	var chunks []string
	var buf strings.Builder

	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
	}

	for _, sentence := range splitSentences(para) {
		if buf.Len()+len(sentence) <= maxChars {
			buf.WriteString(sentence)
			continue
		}
		flush()
		if len(sentence) > maxChars {
			chunks = append(chunks, wrapWords(sentence, maxChars)...)
			continue
		}
		buf.WriteString(sentence)
	}
	flush()
	return chunks
}

// splitSentences cuts text after each run of sentence-terminal punctuation
// followed by whitespace. The terminator stays attached to its sentence.
func splitSentences(text string) []string {
	bounds := sentenceRe.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}

	var sentences []string
	start := 0
	for _, b := range bounds {
		sentences = append(sentences, text[start:b[1]])
		start = b[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

// wrapWords force-wraps an over-long sentence at word boundaries. A single
// word longer than maxChars becomes its own chunk rather than being split
// mid-word.
func wrapWords(sentence string, maxChars int) []string {
	var chunks []string
	var buf strings.Builder

	for _, word := range strings.Fields(sentence) {
		needed := len(word)
		if buf.Len() > 0 {
			needed += buf.Len() + 1
		}
		if needed > maxChars && buf.Len() > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(word)
	}
	if buf.Len() > 0 {
		chunks = append(chunks, buf.String())
	}
	return chunks
}
