// Package catalog owns the source database a booklist is materialized from:
// books, their authors, series, shelves and loans.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agentic-research/booklist/internal/schema"
	_ "modernc.org/sqlite"
)

// Open opens the catalogue at path, creating the schema when missing.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the catalogue tables, their indexes and the full-text
// index if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return tx.Commit()
}

func schemaStatements() []string {
	var out []string
	for _, t := range schema.Catalogue() {
		out = append(out, t.CreateIfMissingSQL())
	}
	return append(out,
		"CREATE UNIQUE INDEX IF NOT EXISTS authors_name ON authors (family_name, given_names)",
		"CREATE UNIQUE INDEX IF NOT EXISTS series_name ON series (series_name)",
		"CREATE UNIQUE INDEX IF NOT EXISTS bookshelf_name ON bookshelf (bookshelf)",
		"CREATE UNIQUE INDEX IF NOT EXISTS book_author_pk ON book_author (book, author)",
		"CREATE INDEX IF NOT EXISTS book_author_author ON book_author (author)",
		"CREATE UNIQUE INDEX IF NOT EXISTS book_series_pk ON book_series (book, series)",
		"CREATE UNIQUE INDEX IF NOT EXISTS book_bookshelf_pk ON book_bookshelf (book, shelf)",
		"CREATE UNIQUE INDEX IF NOT EXISTS loan_book ON loan (book)",
		"CREATE VIRTUAL TABLE IF NOT EXISTS "+schema.FTSTable+" USING fts5(title, authors, series, description)",
	)
}
