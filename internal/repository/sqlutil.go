package repository

import (
	"context"
	"database/sql"
	"math"
	"time"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so read helpers can be
// shared between transactional and plain lookups.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are stored as Unix milliseconds so that range predicates and
// ordering behave the same on MySQL and SQLite.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Page selects a window of a listing.  Number is one-based.
type Page struct {
	Number int
	Size   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPageNumber keeps the offset far inside the range of an SQL
	// OFFSET; pages past it are simply empty.
	maxPageNumber = math.MaxInt32 / maxPageSize
)

// Normalize applies the default page size and clamps out of range values.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Number > maxPageNumber {
		p.Number = maxPageNumber
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

func (p Page) offset() int {
	return (p.Number - 1) * p.Size
}
