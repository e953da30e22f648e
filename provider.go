package bookvision

import "context"

// EmbeddingProvider abstracts text embedding. Implementations must be
// deterministic for identical input and always return vectors of the same
// dimension.
type EmbeddingProvider interface {
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// Answerer abstracts the LLM backend that turns retrieved context into prose.
// The core only supplies ranked context; it never parses the answer.
type Answerer interface {
	// Answer responds to a question given ranked context passages and
	// optional prior conversation turns.
	Answer(ctx context.Context, question string, contexts []ContextEntry, history []QATurn) (string, error)
	// Summarize produces a short summary of the given passages.
	Summarize(ctx context.Context, contexts []ContextEntry) (string, error)
}

// Catalog is the durable ledger of ingested books. Implementations live in
// store/sqlite and store/postgres.
type Catalog interface {
	SaveBook(ctx context.Context, book Book) error
	GetBook(ctx context.Context, id string) (Book, error)
	ListBooks(ctx context.Context) ([]Book, error)

	Init(ctx context.Context) error
	Close() error
}
