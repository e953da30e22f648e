// Package postgres implements the book catalog on PostgreSQL.
//
// Catalog accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	bookvision "github.com/nevindra/bookvision"
)

// Catalog implements bookvision.Catalog backed by PostgreSQL.
type Catalog struct {
	pool *pgxpool.Pool
}

var _ bookvision.Catalog = (*Catalog)(nil)

// ErrNotFound is returned when a book ID has no catalog entry.
var ErrNotFound = errors.New("book not found")

// New creates a Catalog using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// Init creates the books table. Safe to call multiple times.
func (c *Catalog) Init(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		pages INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		created_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// SaveBook inserts or replaces a catalog entry. Re-ingesting a book updates
// its counts in place.
func (c *Catalog) SaveBook(ctx context.Context, b bookvision.Book) error {
	_, err := c.pool.Exec(ctx, `INSERT INTO books (id, title, source, pages, chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			pages = EXCLUDED.pages,
			chunks = EXCLUDED.chunks`,
		b.ID, b.Title, b.Source, b.Pages, b.Chunks, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

// GetBook returns one catalog entry or ErrNotFound.
func (c *Catalog) GetBook(ctx context.Context, id string) (bookvision.Book, error) {
	var b bookvision.Book
	err := c.pool.QueryRow(ctx,
		`SELECT id, title, source, pages, chunks, created_at FROM books WHERE id = $1`, id).
		Scan(&b.ID, &b.Title, &b.Source, &b.Pages, &b.Chunks, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return bookvision.Book{}, ErrNotFound
	}
	if err != nil {
		return bookvision.Book{}, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

// ListBooks returns all catalog entries, newest first.
func (c *Catalog) ListBooks(ctx context.Context) ([]bookvision.Book, error) {
	rows, err := c.pool.Query(ctx,
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
	return books, nil
}

// DeleteBook removes a catalog entry. Deleting an unknown ID is a no-op.
func (c *Catalog) DeleteBook(ctx context.Context, id string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Close is a no-op: the pool is owned by the caller.
func (c *Catalog) Close() error { return nil }
