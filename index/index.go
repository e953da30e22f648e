// Package index implements a flat inner-product vector index with metadata
// kept in lockstep. Vectors are unit-normalized on insertion and on query, so
// inner product equals cosine similarity. Search is exact brute force, which
// is adequate at the target corpus scale.
package index

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nevindra/bookvision"
)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets a structured logger for the index. When set, the index
// emits debug logs for inserts, searches, and persistence, including timing
// and entry counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Index stores unit-normalized embedding vectors in a flat float32 arena and
// their metadata records in a parallel slice. Both sides are appended under a
// single write lock, so their lengths can never be observed out of step.
// Entries are append-only: there is no delete or update path.
type Index struct {
	mu     sync.RWMutex
	dim    int
	arena  []float32 // len = count * dim
	meta   metaStore
	logger *slog.Logger
}

// New creates an empty Index for vectors of the given dimension.
func New(dim int, opts ...Option) *Index {
	ix := &Index{dim: dim, logger: nopLogger}
	for _, o := range opts {
		o(ix)
	}
	return ix
}

// Dimension returns the vector dimension the index was created with.
func (ix *Index) Dimension() int { return ix.dim }

// Size returns the number of stored entries.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.meta.len()
}

// Normalize scales v to unit L2 norm in place and returns it. The zero
// vector passes through unchanged to avoid division by zero. Normalizing an
// already-normalized vector is a no-op.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return v
}

// Add appends one vector and its metadata as an atomic pair.
// Returns *bookvision.ErrDimension if the vector length is wrong.
func (ix *Index) Add(vec []float32, md bookvision.Metadata) error {
	if len(vec) != ix.dim {
		return &bookvision.ErrDimension{Want: ix.dim, Got: len(vec)}
	}
	return ix.AddBatch([][]float32{vec}, []bookvision.Metadata{md})
}

// AddBatch appends N vectors and N metadata records in input order as one
// atomic operation. The whole batch is validated before anything is stored;
// any malformed entry (wrong length, non-finite values) or a count mismatch
// fails the batch with *bookvision.ErrBatchInsert and leaves the index
// unchanged.
func (ix *Index) AddBatch(vecs [][]float32, mds []bookvision.Metadata) error {
	start := time.Now()
	if len(vecs) != len(mds) {
		return &bookvision.ErrBatchInsert{
			Entry:  -1,
			Reason: "vector and metadata counts differ",
		}
	}
	if len(vecs) == 0 {
		return nil
	}

	for i, v := range vecs {
		if len(v) != ix.dim {
			return &bookvision.ErrBatchInsert{Entry: i, Reason: (&bookvision.ErrDimension{Want: ix.dim, Got: len(v)}).Error()}
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return &bookvision.ErrBatchInsert{Entry: i, Reason: "non-finite value"}
			}
		}
	}

	// Normalize into a fresh arena segment so caller slices stay untouched
	// and the locked section is a plain append.
	segment := make([]float32, 0, len(vecs)*ix.dim)
	for _, v := range vecs {
		segment = append(segment, v...)
	}
	for off := 0; off < len(segment); off += ix.dim {
		Normalize(segment[off : off+ix.dim])
	}

	ix.mu.Lock()
	ix.arena = append(ix.arena, segment...)
	ix.meta.append(mds)
	ix.mu.Unlock()

	ix.logger.Debug("index: batch added",
		"entries", len(vecs), "size", ix.Size(), "duration", time.Since(start))
	return nil
}

// Search returns up to k entries ranked by descending cosine similarity to
// the query vector. Ties are broken by insertion order, earliest first. An
// empty index yields an empty result, not an error. Returns
// *bookvision.ErrDimension if the query length is wrong.
func (ix *Index) Search(query []float32, k int) ([]bookvision.ScoredSource, error) {
	start := time.Now()
	if len(query) != ix.dim {
		return nil, &bookvision.ErrDimension{Want: ix.dim, Got: len(query)}
	}

	q := Normalize(append([]float32(nil), query...))

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := ix.meta.len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	type scored struct {
		pos   int
		score float32
	}
	all := make([]scored, n)
	for i := 0; i < n; i++ {
		off := i * ix.dim
		var dot float32
		for j, x := range q {
			dot += x * ix.arena[off+j]
		}
		all[i] = scored{pos: i, score: dot}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})

	results := make([]bookvision.ScoredSource, k)
	for i := 0; i < k; i++ {
		results[i] = bookvision.ScoredSource{
			Metadata: ix.meta.at(all[i].pos),
			Score:    all[i].score,
		}
	}

	ix.logger.Debug("index: search",
		"top_k", k, "size", n, "duration", time.Since(start))
	return results, nil
}

// Metadata returns the record at ordinal position i.
func (ix *Index) Metadata(i int) (bookvision.Metadata, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if i < 0 || i >= ix.meta.len() {
		return bookvision.Metadata{}, false
	}
	return ix.meta.at(i), true
}

// BookChunks returns all metadata records for one book, sorted by page and
// then by insertion order. Returns nil when the book is not in the index.
func (ix *Index) BookChunks(bookID string) []bookvision.Metadata {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.meta.byBook(bookID)
}

// HasBook reports whether any stored entry belongs to the given book.
func (ix *Index) HasBook(bookID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.meta.hasBook(bookID)
}

// Books aggregates stored metadata into per-book listings, in first-seen
// insertion order.
func (ix *Index) Books() []bookvision.BookInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.meta.books()
}

// Stats summarizes the index contents.
func (ix *Index) Stats() bookvision.Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return bookvision.Stats{
		TotalChunks: ix.meta.len(),
		Dimension:   ix.dim,
		UniqueBooks: ix.meta.uniqueBooks(),
	}
}
