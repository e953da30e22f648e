package bookvision

// --- Domain types ---

// Metadata ties an indexed chunk back to its originating book, page, and
// source file. One Metadata record exists per stored vector, at the same
// ordinal position.
type Metadata struct {
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	Page      int    `json:"page"`
	Source    string `json:"source"`
	ChunkText string `json:"chunk_text"`
}

// ScoredSource is a single search hit: chunk provenance plus its
// cosine-similarity score against the query.
type ScoredSource struct {
	Metadata
	Score float32 `json:"score"`
}

// Book is a catalog record for one ingested document.
type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Pages     int    `json:"pages"`
	Chunks    int    `json:"chunks"`
	CreatedAt int64  `json:"created_at"`
}

// BookInfo aggregates index metadata for one book. Books are a virtual
// grouping: they are derived from chunk metadata at query time, not stored.
type BookInfo struct {
	BookID     string `json:"book_id"`
	BookTitle  string `json:"book_title"`
	ChunkCount int    `json:"chunk_count"`
	Pages      []int  `json:"pages"`
	PageCount  int    `json:"page_count"`
}

// Stats summarizes the index contents.
type Stats struct {
	TotalChunks int `json:"total_chunks"`
	Dimension   int `json:"dimension"`
	UniqueBooks int `json:"unique_books"`
}

// --- Answering protocol types ---

// ContextEntry is one ranked context passage handed to the Answerer.
type ContextEntry struct {
	Page      int    `json:"page"`
	ChunkText string `json:"chunk_text"`
}

// QATurn is one prior question/answer exchange from the conversation.
type QATurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QueryResponse is the structured result of a question against the index.
// It is always populated, even when nothing matched.
type QueryResponse struct {
	Answer  string         `json:"answer"`
	Sources []ScoredSource `json:"sources"`
	Cached  bool           `json:"cached"`
}

// SummaryResponse is the structured result of a book summary request.
type SummaryResponse struct {
	Summary       string `json:"summary"`
	BookID        string `json:"book_id"`
	PagesAnalyzed int    `json:"pages_analyzed"`
}
