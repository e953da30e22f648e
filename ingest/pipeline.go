package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bookvision "github.com/nevindra/bookvision"
	"github.com/nevindra/bookvision/index"
)

// ErrEmptyDocument is returned when a document yields no chunks above the
// noise floor.
var ErrEmptyDocument = errors.New("document produced no usable text")

// State names the phase an ingestion is in.
type State string

const (
	StateReceived         State = "received"
	StateExtracting       State = "extracting"
	StateChunking         State = "chunking"
	StateEmbedding        State = "embedding"
	StateIndexing         State = "indexing"
	StatePersistingImages State = "persisting_images"
	StateDone             State = "done"
	StateError            State = "error"
)

// Progress is one ingestion progress event. Percent is 0-100 and never
// decreases over the lifetime of a single ingestion.
type Progress struct {
	State   State
	Percent int
	Message string
}

// Observer receives progress events during ingestion.
type Observer interface {
	OnProgress(p Progress)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(p Progress)

func (f ObserverFunc) OnProgress(p Progress) { f(p) }

// Request describes one pre-extracted document to ingest.
type Request struct {
	BookID   string
	Title    string
	Source   string
	Pages    []Page
	Observer Observer
}

// Result reports what an ingestion produced.
type Result struct {
	BookID     string
	ChunkCount int
	PageCount  int
}

// Pipeline runs the full ingestion flow: extract, chunk, embed in batches,
// index atomically, persist. One Pipeline serves many ingestions; the index
// serializes concurrent writers itself.
type Pipeline struct {
	index     *index.Index
	embedding bookvision.EmbeddingProvider
	catalog   bookvision.Catalog
	images    ImageStore
	indexDir  string
	batchSize int
	maxChars  int
	minChars  int
	logger    *slog.Logger
}

// DefaultBatchSize is how many chunks are embedded per provider call.
const DefaultBatchSize = 100

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithChunkSize sets the chunker's max and min characters.
func WithChunkSize(maxChars, minChars int) PipelineOption {
	return func(p *Pipeline) {
		p.maxChars = maxChars
		p.minChars = minChars
	}
}

// WithCatalog registers a durable book catalog. Catalog failures are logged,
// not fatal: the index remains the source of truth.
func WithCatalog(c bookvision.Catalog) PipelineOption {
	return func(p *Pipeline) { p.catalog = c }
}

// WithImageStore registers a page image store.
func WithImageStore(s ImageStore) PipelineOption {
	return func(p *Pipeline) { p.images = s }
}

// WithIndexDir sets the directory the index is saved to after each
// ingestion. Empty disables persistence.
func WithIndexDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.indexDir = dir }
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates an ingestion pipeline over the given index and
// embedding provider.
func NewPipeline(ix *index.Index, embedding bookvision.EmbeddingProvider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		index:     ix,
		embedding: embedding,
		batchSize: DefaultBatchSize,
		maxChars:  DefaultMaxChars,
		minChars:  DefaultMinChars,
		logger:    slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// IngestDocument extracts raw document bytes using an extractor chosen from
// the filename, then runs the page ingestion flow.
func (p *Pipeline) IngestDocument(ctx context.Context, bookID, title, filename string, content []byte, obs Observer) (Result, error) {
	notify(obs, Progress{State: StateExtracting, Percent: 10, Message: "extracting text"})

	extractor := ExtractorForFilename(filename)
	pages, err := extractor.ExtractPages(content)
	if err != nil {
		notify(obs, Progress{State: StateError, Percent: 10, Message: err.Error()})
		return Result{}, fmt.Errorf("extract %s: %w", filename, err)
	}
	notify(obs, Progress{State: StateExtracting, Percent: 40, Message: fmt.Sprintf("extracted %d pages", len(pages))})

	return p.IngestPages(ctx, Request{
		BookID:   bookID,
		Title:    title,
		Source:   filename,
		Pages:    pages,
		Observer: obs,
	})
}

// IngestPages chunks, embeds, and indexes already-extracted pages. The index
// insert is a single atomic batch: a failure at any stage leaves the index
// untouched.
func (p *Pipeline) IngestPages(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	obs := &progressTracker{inner: req.Observer}
	req.Observer = obs

	res, err := p.ingest(ctx, req)
	if err != nil {
		notify(obs, Progress{State: StateError, Percent: obs.percent, Message: err.Error()})
		p.logger.Error("ingestion failed",
			"book_id", req.BookID,
			"error", err)
		return Result{}, err
	}

	notify(obs, Progress{State: StateDone, Percent: 100, Message: "completed"})
	p.logger.Info("ingestion completed",
		"book_id", res.BookID,
		"chunks", res.ChunkCount,
		"pages", res.PageCount,
		"duration", time.Since(start))
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, req Request) (Result, error) {
	obs := req.Observer
	if req.BookID == "" {
		req.BookID = bookvision.NewID()
	}

	notify(obs, Progress{State: StateChunking, Percent: 40, Message: "chunking text"})
	chunks, metas := p.chunkPages(req)
	if len(chunks) == 0 {
		return Result{}, ErrEmptyDocument
	}
	notify(obs, Progress{State: StateChunking, Percent: 50, Message: fmt.Sprintf("%d chunks", len(chunks))})

	vecs, err := p.embedChunks(ctx, chunks, obs)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}

	notify(obs, Progress{State: StateIndexing, Percent: 85, Message: "indexing"})
	if err := p.index.AddBatch(vecs, metas); err != nil {
		return Result{}, fmt.Errorf("index chunks: %w", err)
	}

	if p.indexDir != "" {
		notify(obs, Progress{State: StateIndexing, Percent: 90, Message: "saving index"})
		if err := p.index.Save(p.indexDir); err != nil {
			return Result{}, fmt.Errorf("save index: %w", err)
		}
	}

	p.persistImages(req, obs)
	p.recordBook(ctx, req, len(chunks))

	return Result{
		BookID:     req.BookID,
		ChunkCount: len(chunks),
		PageCount:  len(req.Pages),
	}, nil
}

// chunkPages cleans and chunks each page, producing parallel chunk and
// metadata slices with page provenance preserved.
func (p *Pipeline) chunkPages(req Request) ([]string, []bookvision.Metadata) {
	var chunks []string
	var metas []bookvision.Metadata
	for _, page := range req.Pages {
		text := CleanText(page.Text)
		for _, chunk := range ChunkText(text, WithMaxChars(p.maxChars), WithMinChars(p.minChars)) {
			chunks = append(chunks, chunk)
			metas = append(metas, bookvision.Metadata{
				BookID:    req.BookID,
				BookTitle: req.Title,
				Page:      page.Number,
				Source:    req.Source,
				ChunkText: chunk,
			})
		}
	}
	return chunks, metas
}

// embedChunks embeds chunks in fixed-size batches, reporting progress
// between 65 and 80 percent. Any batch failure aborts the whole ingestion.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []string, obs Observer) ([][]float32, error) {
	total := len(chunks)
	vecs := make([][]float32, 0, total)

	for off := 0; off < total; off += p.batchSize {
		end := min(off+p.batchSize, total)

		batch, err := p.embedding.Embed(ctx, chunks[off:end])
		if err != nil {
			return nil, fmt.Errorf("batch at %d: %w", off, err)
		}
		if len(batch) != end-off {
			return nil, fmt.Errorf("batch at %d: provider returned %d vectors for %d texts", off, len(batch), end-off)
		}
		vecs = append(vecs, batch...)

		pct := 65 + (15 * end / total)
		notify(obs, Progress{
			State:   StateEmbedding,
			Percent: pct,
			Message: fmt.Sprintf("embedded %d/%d chunks", end, total),
		})
		p.logger.Debug("embedded batch",
			"provider", p.embedding.Name(),
			"done", end,
			"total", total)
	}
	return vecs, nil
}

// persistImages stores page images when a store is configured. Image
// failures are logged and ignored: the searchable index is already complete.
func (p *Pipeline) persistImages(req Request, obs Observer) {
	if p.images == nil {
		return
	}
	notify(obs, Progress{State: StatePersistingImages, Percent: 90, Message: "saving page images"})
	n, err := p.images.SavePages(req.BookID, req.Pages)
	if err != nil {
		// degrade gracefully
		p.logger.Warn("failed to persist page images",
			"book_id", req.BookID,
			"error", err)
		return
	}
	if n > 0 {
		notify(obs, Progress{State: StatePersistingImages, Percent: 95, Message: fmt.Sprintf("saved %d page images", n)})
	}
}

// recordBook writes the catalog entry when a catalog is configured. Catalog
// failures are logged and ignored: the index is the source of truth.
func (p *Pipeline) recordBook(ctx context.Context, req Request, chunkCount int) {
	if p.catalog == nil {
		return
	}
	err := p.catalog.SaveBook(ctx, bookvision.Book{
		ID:        req.BookID,
		Title:     req.Title,
		Source:    req.Source,
		Pages:     len(req.Pages),
		Chunks:    chunkCount,
		CreatedAt: bookvision.NowUnix(),
	})
	if err != nil {
		// degrade gracefully
		p.logger.Warn("failed to record book in catalog",
			"book_id", req.BookID,
			"error", err)
	}
}

// progressTracker forwards events and remembers the highest percent seen, so
// the terminal error event reports the run's last position. Percent stays
// monotone even when a stage fails partway through.
type progressTracker struct {
	inner   Observer
	percent int
}

func (t *progressTracker) OnProgress(p Progress) {
	if p.Percent > t.percent {
		t.percent = p.Percent
	}
	notify(t.inner, p)
}

func notify(obs Observer, p Progress) {
	if obs != nil {
		obs.OnProgress(p)
	}
}
