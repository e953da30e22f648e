// Package sqlite implements the book catalog on pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bookvision "github.com/nevindra/bookvision"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// CatalogOption configures a SQLite Catalog.
type CatalogOption func(*Catalog)

// WithLogger sets a structured logger for the catalog.
// When set, the catalog emits debug logs for every operation including
// timing and row counts. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// Catalog implements bookvision.Catalog backed by a local SQLite file.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ bookvision.Catalog = (*Catalog)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// ErrNotFound is returned when a book ID has no catalog entry.
var ErrNotFound = errors.New("book not found")

// New creates a Catalog using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...CatalogOption) *Catalog {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	c := &Catalog{db: db, logger: nopLogger}
	for _, o := range opts {
		o(c)
	}
	c.logger.Debug("sqlite: catalog opened", "path", dbPath)
	return c
}

// Init creates the books table.
func (c *Catalog) Init(ctx context.Context) error {
	start := time.Now()
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		pages INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	c.logger.Debug("sqlite: init done", "duration", time.Since(start))
	return nil
}

// SaveBook inserts or replaces a catalog entry. Re-ingesting a book updates
// its counts in place.
func (c *Catalog) SaveBook(ctx context.Context, b bookvision.Book) error {
	start := time.Now()
	_, err := c.db.ExecContext(ctx, `INSERT INTO books (id, title, source, pages, chunks, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source = excluded.source,
			pages = excluded.pages,
			chunks = excluded.chunks`,
		b.ID, b.Title, b.Source, b.Pages, b.Chunks, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	c.logger.Debug("sqlite: book saved",
		"book_id", b.ID,
		"chunks", b.Chunks,
		"duration", time.Since(start))
	return nil
}

// GetBook returns one catalog entry or ErrNotFound.
func (c *Catalog) GetBook(ctx context.Context, id string) (bookvision.Book, error) {
	var b bookvision.Book
	err := c.db.QueryRowContext(ctx,
		`SELECT id, title, source, pages, chunks, created_at FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Source, &b.Pages, &b.Chunks, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return bookvision.Book{}, ErrNotFound
	}
	if err != nil {
		return bookvision.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooks returns all catalog entries, newest first.
func (c *Catalog) ListBooks(ctx context.Context) ([]bookvision.Book, error) {
	start := time.Now()
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, title, source, pages, chunks, created_at FROM books ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []bookvision.Book
	for rows.Next() {
		var b bookvision.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Source, &b.Pages, &b.Chunks, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	c.logger.Debug("sqlite: books listed",
		"count", len(books),
		"duration", time.Since(start))
	return books, nil
}

// DeleteBook removes a catalog entry. Deleting an unknown ID is a no-op.
func (c *Catalog) DeleteBook(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
