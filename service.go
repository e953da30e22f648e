package bookvision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const (
	// DefaultTopK is how many sources a query returns.
	DefaultTopK = 5
	// contextLimit caps how many passages reach the Answerer.
	contextLimit = 3
	// overfetchFactor widens a filtered search so post-filtering still
	// fills topK.
	overfetchFactor = 10
	// summaryChunksPerPage caps how much of each page feeds a summary.
	summaryChunksPerPage = 3

	defaultCacheTTL = time.Hour

	cacheNamespaceQuery   = "query"
	cacheNamespaceSummary = "summary"
)

// SearchIndex is the read surface the query service needs from the vector
// index.
type SearchIndex interface {
	Search(query []float32, k int) ([]ScoredSource, error)
	BookChunks(bookID string) []Metadata
	HasBook(bookID string) bool
	Books() []BookInfo
	Stats() Stats
	Size() int
	Dimension() int
}

// ResultCache is the caching surface the query service uses. Get reports a
// hit; misses and backend failures both read as false.
type ResultCache interface {
	Get(ctx context.Context, namespace, query string, dest any) bool
	Set(ctx context.Context, namespace, query string, value any, ttl time.Duration)
	Clear(ctx context.Context, namespace string)
}

// Service answers questions against the indexed corpus: embed the question,
// retrieve nearest chunks, hand the best ones to the Answerer. Results are
// cached per normalized question.
type Service struct {
	index     SearchIndex
	embedding EmbeddingProvider
	answerer  Answerer
	cache     ResultCache
	catalog   Catalog
	topK      int
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables result caching.
func WithCache(c ResultCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithCatalog attaches the durable book catalog for listings.
func WithCatalog(c Catalog) ServiceOption {
	return func(s *Service) { s.catalog = c }
}

// WithTopK sets how many sources a query returns.
func WithTopK(k int) ServiceOption {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithCacheTTL sets how long query results stay cached.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates the query service.
func NewService(ix SearchIndex, embedding EmbeddingProvider, answerer Answerer, opts ...ServiceOption) *Service {
	s := &Service{
		index:     ix,
		embedding: embedding,
		answerer:  answerer,
		topK:      DefaultTopK,
		cacheTTL:  defaultCacheTTL,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Query answers a question against the index, optionally scoped to one
// book. An empty index or unknown book yields a structured response, not an
// error; errors are reserved for embedding and answering failures.
func (s *Service) Query(ctx context.Context, question, bookID string, history []QATurn) (QueryResponse, error) {
	start := time.Now()

	if s.index.Size() == 0 {
		return QueryResponse{Answer: "No documents have been ingested yet. Upload a book first."}, nil
	}
	if bookID != "" && !s.index.HasBook(bookID) {
		return QueryResponse{Answer: fmt.Sprintf("No book with ID %q has been ingested.", bookID)}, nil
	}

	cacheKey := question
	if bookID != "" {
		cacheKey = bookID + ":" + question
	}
	// only cache history-free queries: prior turns change the answer
	cacheable := s.cache != nil && len(history) == 0
	if cacheable {
		var cached QueryResponse
		if s.cache.Get(ctx, cacheNamespaceQuery, cacheKey, &cached) {
			cached.Cached = true
			s.logger.Debug("query served from cache", "book_id", bookID)
			return cached, nil
		}
	}

	sources, err := s.retrieve(ctx, question, bookID)
	if err != nil {
		return QueryResponse{}, err
	}
	if len(sources) == 0 {
		return QueryResponse{Answer: "No relevant passages were found for this question."}, nil
	}

	contexts := make([]ContextEntry, 0, contextLimit)
	for _, src := range sources {
		if len(contexts) == contextLimit {
			break
		}
		contexts = append(contexts, ContextEntry{Page: src.Page, ChunkText: src.ChunkText})
	}

	answer, err := s.answerer.Answer(ctx, question, contexts, history)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("answer question: %w", err)
	}

	resp := QueryResponse{Answer: answer, Sources: sources}
	if cacheable {
		s.cache.Set(ctx, cacheNamespaceQuery, cacheKey, resp, s.cacheTTL)
	}

	s.logger.Debug("query answered",
		"book_id", bookID,
		"sources", len(sources),
		"duration", time.Since(start))
	return resp, nil
}

// retrieve embeds the question and returns the top matching chunks, deduped
// so each (book, page) appears once at its best score.
func (s *Service) retrieve(ctx context.Context, question, bookID string) ([]ScoredSource, error) {
	vecs, err := s.embedding.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: provider returned %d vectors", len(vecs))
	}

	k := s.topK
	if bookID != "" {
		// overfetch so the book filter can still fill topK
		k *= overfetchFactor
	}
	hits, err := s.index.Search(vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	type pageKey struct {
		book string
		page int
	}
	seen := make(map[pageKey]bool)
	var sources []ScoredSource
	for _, h := range hits {
		if bookID != "" && h.BookID != bookID {
			continue
		}
		key := pageKey{h.BookID, h.Page}
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, h)
		if len(sources) == s.topK {
			break
		}
	}
	return sources, nil
}

// Summary produces a short summary of one book from its indexed chunks,
// sampled across pages so long books stay within the Answerer's context.
func (s *Service) Summary(ctx context.Context, bookID string) (SummaryResponse, error) {
	if !s.index.HasBook(bookID) {
		return SummaryResponse{}, fmt.Errorf("summarize %q: %w", bookID, ErrBookNotFound)
	}

	if s.cache != nil {
		var cached SummaryResponse
		if s.cache.Get(ctx, cacheNamespaceSummary, bookID, &cached) {
			return cached, nil
		}
	}

	chunks := s.index.BookChunks(bookID)
	var contexts []ContextEntry
	perPage := make(map[int]int)
	pages := make(map[int]bool)
	for _, md := range chunks {
		pages[md.Page] = true
		if perPage[md.Page] >= summaryChunksPerPage {
			continue
		}
		perPage[md.Page]++
		contexts = append(contexts, ContextEntry{Page: md.Page, ChunkText: md.ChunkText})
	}

	summary, err := s.answerer.Summarize(ctx, contexts)
	if err != nil {
		return SummaryResponse{}, fmt.Errorf("summarize book: %w", err)
	}

	resp := SummaryResponse{
		Summary:       summary,
		BookID:        bookID,
		PagesAnalyzed: len(pages),
	}
	if s.cache != nil {
		s.cache.Set(ctx, cacheNamespaceSummary, bookID, resp, s.cacheTTL)
	}
	return resp, nil
}

// ListBooks returns the books currently in the index, derived from chunk
// metadata.
func (s *Service) ListBooks() []BookInfo {
	return s.index.Books()
}

// CatalogBooks returns the durable catalog entries, newest first. Without a
// catalog it returns nil.
func (s *Service) CatalogBooks(ctx context.Context) ([]Book, error) {
	if s.catalog == nil {
		return nil, nil
	}
	books, err := s.catalog.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].CreatedAt > books[j].CreatedAt })
	return books, nil
}

// Stats reports index totals.
func (s *Service) Stats() Stats {
	return s.index.Stats()
}

// InvalidateCache drops cached query and summary results. Call after
// ingesting new content so stale answers do not outlive their TTL.
func (s *Service) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.Clear(ctx, cacheNamespaceQuery)
	s.cache.Clear(ctx, cacheNamespaceSummary)
}
