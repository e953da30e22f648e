package bookvision

import (
	"errors"
	"fmt"
	"time"
)

// ErrBookNotFound is returned when an operation names a book the index does
// not contain.
var ErrBookNotFound = errors.New("book not found")

// ErrDimension reports a vector whose length does not match the index.
type ErrDimension struct {
	Want int
	Got  int
}

func (e *ErrDimension) Error() string {
	return fmt.Sprintf("vector dimension %d, index expects %d", e.Got, e.Want)
}

// ErrBatchInsert reports a malformed batch. No entries from the batch were
// stored: batch insertion is all-or-nothing. Entry is the offending position,
// or -1 when the batch as a whole is malformed.
type ErrBatchInsert struct {
	Entry  int
	Reason string
}

func (e *ErrBatchInsert) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("batch insert: %s", e.Reason)
	}
	return fmt.Sprintf("batch insert: entry %d: %s", e.Entry, e.Reason)
}

// ErrHTTP reports a non-2xx response from an external backend. RetryAfter
// carries the server's Retry-After header when present.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
