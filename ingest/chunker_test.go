package ingest

import (
	"strings"
	"testing"
)

func TestCleanTextNormalizes(t *testing.T) {
	in := "line one\r\nline two\r\r\n\n\n\nnext   para  with   runs"
	got := CleanText(in)
	if strings.Contains(got, "\r") {
		t.Error("carriage returns should be removed")
	}
	if strings.Contains(got, "\n\n\n") {
		t.Error("3+ newline runs should collapse to a blank line")
	}
	if strings.Contains(got, "  ") {
		t.Error("space runs should collapse")
	}
}

func TestCleanTextRejoinsHyphenation(t *testing.T) {
	got := CleanText("under-\nstanding the text")
	if !strings.Contains(got, "understanding") {
		t.Errorf("hyphenated line break not rejoined: %q", got)
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if got := ChunkText(""); got != nil {
		t.Errorf("empty input: got %v, want nil", got)
	}
	if got := ChunkText("   \n\n  "); got != nil {
		t.Errorf("whitespace input: got %v, want nil", got)
	}
}

func TestChunkTextShortParagraphVerbatim(t *testing.T) {
	para := strings.Repeat("word ", 20) + "end of the paragraph here."
	got := ChunkText(para)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
	if got[0] != strings.TrimSpace(para) {
		t.Errorf("short paragraph should pass through verbatim")
	}
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	p1 := strings.Repeat("alpha ", 15)
	p2 := strings.Repeat("beta ", 15)
	got := ChunkText(p1 + "\n\n" + p2)
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
}

func TestChunkTextRespectsMaxChars(t *testing.T) {
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, strings.Repeat("x", 60)+".")
	}
	text := strings.Join(sentences, " ")

	for _, c := range ChunkText(text, WithMaxChars(200)) {
		if len(c) > 200 {
			t.Errorf("chunk exceeds max: %d chars", len(c))
		}
	}
}

func TestChunkTextSentenceBoundaries(t *testing.T) {
	s1 := "First sentence is here and it keeps going for quite a while indeed."
	s2 := "Second sentence is also fairly long and continues onward steadily."
	got := ChunkText(s1+" "+s2, WithMaxChars(len(s1)+5))
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(got), got)
	}
	if !strings.HasSuffix(strings.TrimSpace(got[0]), ".") {
		t.Errorf("chunk should end at a sentence boundary: %q", got[0])
	}
}

func TestChunkTextNeverSplitsWords(t *testing.T) {
	words := strings.Fields(strings.Repeat("sizeablewording ", 200))
	text := strings.Join(words, " ")

	seen := make(map[string]bool)
	for _, c := range ChunkText(text, WithMaxChars(100), WithMinChars(1)) {
		for _, w := range strings.Fields(c) {
			seen[w] = true
		}
	}
	if len(seen) != 1 || !seen["sizeablewording"] {
		t.Errorf("words were split across chunk boundaries: %v", seen)
	}
}

func TestChunkTextOverlongWordKeptWhole(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := ChunkText("intro words before it. "+long+" trailing words after it.", WithMaxChars(100), WithMinChars(1))
	found := false
	for _, c := range got {
		if strings.Contains(c, long) {
			found = true
		}
	}
	if !found {
		t.Error("over-long word should survive intact in one chunk")
	}
}

func TestChunkTextDropsNoise(t *testing.T) {
	got := ChunkText("ok.\n\n" + strings.Repeat("real content sentence here. ", 5))
	for _, c := range got {
		if len(c) < DefaultMinChars {
			t.Errorf("chunk below noise floor survived: %q", c)
		}
	}
}
