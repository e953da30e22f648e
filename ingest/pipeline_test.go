package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	bookvision "github.com/nevindra/bookvision"
	"github.com/nevindra/bookvision/index"
)

const testDim = 32

// wordVec embeds text as a bag-of-words count vector so that cosine
// similarity tracks word overlap deterministically.
func wordVec(text string) []float32 {
	v := make([]float32, testDim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(w))
		v[h.Sum32()%testDim]++
	}
	return v
}

type stubEmbedder struct {
	mu      sync.Mutex
	batches []int
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.batches = append(s.batches, len(texts))
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = wordVec(t)
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return testDim }
func (s *stubEmbedder) Name() string    { return "stub" }

type stubCatalog struct {
	mu    sync.Mutex
	books []bookvision.Book
	err   error
}

func (c *stubCatalog) SaveBook(_ context.Context, b bookvision.Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.books = append(c.books, b)
	return nil
}

func (c *stubCatalog) GetBook(context.Context, string) (bookvision.Book, error) {
	return bookvision.Book{}, nil
}
func (c *stubCatalog) ListBooks(context.Context) ([]bookvision.Book, error) { return nil, nil }
func (c *stubCatalog) Init(context.Context) error                          { return nil }
func (c *stubCatalog) Close() error                                        { return nil }

func page(n int, text string) Page { return Page{Text: text, Number: n} }

func longText(topic string) string {
	return strings.Repeat("The "+topic+" continues with more material here. ", 4)
}

func TestIngestPagesEndToEnd(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	res, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Title:  "Test Book",
		Source: "test.txt",
		Pages:  []Page{page(1, longText("preface")), page(2, longText("first chapter"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.BookID != "b1" || res.PageCount != 2 || res.ChunkCount == 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if ix.Size() != res.ChunkCount {
		t.Errorf("index size %d != chunk count %d", ix.Size(), res.ChunkCount)
	}
	if !ix.HasBook("b1") {
		t.Error("book missing from index")
	}
}

func TestIngestPagesGeneratesBookID(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	res, err := p.IngestPages(context.Background(), Request{
		Title: "Anon",
		Pages: []Page{page(1, longText("content"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.BookID == "" {
		t.Error("expected a generated book ID")
	}
}

func TestIngestPagesEmptyDocument(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, "too short"), page(2, "  ")},
	})
	if !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("got %v, want ErrEmptyDocument", err)
	}
	if ix.Size() != 0 {
		t.Error("index should stay empty")
	}
}

func TestIngestBatchesEmbedding(t *testing.T) {
	emb := &stubEmbedder{}
	ix := index.New(testDim)
	p := NewPipeline(ix, emb, WithBatchSize(2))

	pages := []Page{
		page(1, longText("alpha") + "\n\n" + longText("beta") + "\n\n" + longText("gamma")),
		page(2, longText("delta") + "\n\n" + longText("epsilon")),
	}
	res, err := p.IngestPages(context.Background(), Request{BookID: "b1", Pages: pages})
	if err != nil {
		t.Fatal(err)
	}

	total := 0
	for _, n := range emb.batches {
		if n > 2 {
			t.Errorf("batch of %d exceeds batch size 2", n)
		}
		total += n
	}
	if total != res.ChunkCount {
		t.Errorf("embedded %d texts, want %d", total, res.ChunkCount)
	}
}

func TestIngestEmbedFailureLeavesIndexUntouched(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{err: errors.New("provider down")})

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, longText("anything"))},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if ix.Size() != 0 {
		t.Errorf("index size %d after failed ingest, want 0", ix.Size())
	}
}

func TestIngestProgressMonotonicAndDone(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{}, WithBatchSize(1))

	var events []Progress
	_, err := p.IngestPages(context.Background(), Request{
		BookID:   "b1",
		Pages:    []Page{page(1, longText("one") + "\n\n" + longText("two"))},
		Observer: ObserverFunc(func(pr Progress) { events = append(events, pr) }),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("no progress events")
	}

	last := -1
	for _, e := range events {
		if e.Percent < last {
			t.Errorf("progress went backwards: %d -> %d (%s)", last, e.Percent, e.State)
		}
		last = e.Percent
	}
	final := events[len(events)-1]
	if final.State != StateDone || final.Percent != 100 {
		t.Errorf("final event %+v, want done/100", final)
	}
}

func TestIngestErrorEventKeepsPercent(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{err: errors.New("provider down")})

	var events []Progress
	_, err := p.IngestPages(context.Background(), Request{
		BookID:   "b1",
		Pages:    []Page{page(1, longText("doomed"))},
		Observer: ObserverFunc(func(pr Progress) { events = append(events, pr) }),
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(events) < 2 {
		t.Fatalf("got %d events, want chunking progress before the error", len(events))
	}

	final := events[len(events)-1]
	if final.State != StateError {
		t.Fatalf("final event %+v, want error state", final)
	}
	peak := 0
	for _, e := range events[:len(events)-1] {
		if e.Percent > peak {
			peak = e.Percent
		}
	}
	if final.Percent != peak {
		t.Errorf("error event percent %d, want last reported %d", final.Percent, peak)
	}
}

func TestIngestChunksCarryPageNumbers(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Title:  "Paged",
		Pages:  []Page{page(3, longText("third")), page(7, longText("seventh"))},
	})
	if err != nil {
		t.Fatal(err)
	}

	pagesSeen := map[int]bool{}
	for _, md := range ix.BookChunks("b1") {
		pagesSeen[md.Page] = true
		if md.BookTitle != "Paged" {
			t.Errorf("chunk lost its title: %+v", md)
		}
	}
	if !pagesSeen[3] || !pagesSeen[7] {
		t.Errorf("page provenance lost: %v", pagesSeen)
	}
}

func TestIngestSavesIndex(t *testing.T) {
	dir := t.TempDir()
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{}, WithIndexDir(dir))

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, longText("durable"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "vectors.bin")); err != nil {
		t.Errorf("vectors file not written: %v", err)
	}

	loaded := index.New(testDim)
	if err := loaded.Load(dir); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != ix.Size() {
		t.Errorf("loaded %d vectors, want %d", loaded.Size(), ix.Size())
	}
}

func TestIngestRecordsCatalog(t *testing.T) {
	cat := &stubCatalog{}
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{}, WithCatalog(cat))

	res, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Title:  "Cataloged",
		Source: "c.txt",
		Pages:  []Page{page(1, longText("entry"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.books) != 1 {
		t.Fatalf("got %d catalog entries, want 1", len(cat.books))
	}
	b := cat.books[0]
	if b.ID != "b1" || b.Title != "Cataloged" || b.Chunks != res.ChunkCount || b.Pages != 1 {
		t.Errorf("unexpected catalog entry: %+v", b)
	}
}

func TestIngestCatalogFailureIsNotFatal(t *testing.T) {
	cat := &stubCatalog{err: errors.New("db down")}
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{}, WithCatalog(cat))

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, longText("resilient"))},
	})
	if err != nil {
		t.Fatalf("catalog failure should not fail ingestion: %v", err)
	}
	if ix.Size() == 0 {
		t.Error("chunks should still be indexed")
	}
}

func TestIngestImagesPersisted(t *testing.T) {
	dir := t.TempDir()
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{}, WithImageStore(NewDirImageStore(dir)))

	pages := []Page{
		{Text: longText("illustrated"), Number: 1, Image: []byte{0x89, 'P', 'N', 'G'}},
		{Text: longText("plain"), Number: 2},
	}
	_, err := p.IngestPages(context.Background(), Request{BookID: "b1", Pages: pages})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := NewDirImageStore(dir).PagePath("b1", 1); !ok {
		t.Error("page 1 image not stored")
	}
	if _, ok := NewDirImageStore(dir).PagePath("b1", 2); ok {
		t.Error("page 2 has no image but a path was found")
	}
}

func TestIngestThenSearchFindsRightPage(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	_, err := p.IngestPages(context.Background(), Request{
		BookID: "b1",
		Title:  "Novel",
		Pages: []Page{
			page(1, "Preface acknowledgments dedication material fills this opening page completely."),
			page(2, "Chapter one content begins the actual story with characters and events unfolding."),
			page(3, "Appendix bibliography citations references close out the volume entirely here."),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := ix.Search(wordVec("chapter one content"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Page != 2 {
		t.Errorf("top hit page %d, want 2", hits[0].Page)
	}
}
