package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Author is one author credit of a book.
type Author struct {
	Family   string `json:"family"`
	Given    string `json:"given,omitempty"`
	Complete bool   `json:"complete,omitempty"`
}

// SeriesEntry places a book in a series.
type SeriesEntry struct {
	Name     string `json:"name"`
	Number   string `json:"number,omitempty"`
	Complete bool   `json:"complete,omitempty"`
}

// Book is a catalogue entry. Authors and Series are in credit order; the first
// of each is the primary one.
type Book struct {
	ID               int64
	UUID             string
	Title            string
	Description      string
	Publisher        string
	Genre            string
	Language         string
	Location         string
	Format           string
	Rating           float64
	Read             bool
	Signed           bool
	ReadEnd          string
	DatePublished    string
	FirstPublication string
	DateAcquired     string
	DateAdded        string
	LastUpdate       string
	Authors          []Author
	Series           []SeriesEntry
	Shelves          []string
	LoanedTo         string
}

// Writer adds books to a catalogue in batched transactions.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtBook  *sql.Stmt
	stmtFTS   *sql.Stmt
	batchSize int
	count     int
	mu        sync.Mutex
	log       *zap.Logger

	authors map[Author]int64
	series  map[string]int64
	shelves map[string]int64
}

// NewWriter starts a writer on db. Close must be called to commit.
func NewWriter(db *sql.DB, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		db:        db,
		batchSize: 5000,
		log:       log,
		authors:   make(map[Author]int64),
		series:    make(map[string]int64),
		shelves:   make(map[string]int64),
	}
	if err := w.beginTx(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin catalogue tx: %w", err)
	}
	w.stmtBook, err = w.tx.Prepare(`
		INSERT INTO books (uuid, title, description, publisher, genre, language, location, format,
			rating, read, signed, read_end, date_published, first_publication, date_acquired,
			date_added, last_update_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			Coalesce(?, current_timestamp), Coalesce(?, current_timestamp))
	`)
	if err != nil {
		return fmt.Errorf("prepare book insert: %w", err)
	}
	w.stmtFTS, err = w.tx.Prepare(`INSERT INTO books_fts (rowid, title, authors, series, description) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare fts insert: %w", err)
	}
	return nil
}

func (w *Writer) commitTx() error {
	if w.stmtBook != nil {
		_ = w.stmtBook.Close()
	}
	if w.stmtFTS != nil {
		_ = w.stmtFTS.Close()
	}
	return w.tx.Commit()
}

// Add inserts b with its credits and returns the new book id.
func (w *Writer) Add(ctx context.Context, b *Book) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.TrimSpace(b.Title) == "" {
		return 0, errors.New("book has no title")
	}
	if len(b.Authors) == 0 {
		return 0, fmt.Errorf("book %q has no author", b.Title)
	}
	if b.UUID == "" {
		b.UUID = uuid.NewString()
	}

	res, err := w.stmtBook.ExecContext(ctx,
		b.UUID, b.Title, nullable(b.Description), nullable(b.Publisher), nullable(b.Genre),
		nullable(b.Language), nullable(b.Location), nullable(b.Format),
		b.Rating, b.Read, b.Signed, nullable(b.ReadEnd), nullable(b.DatePublished),
		nullable(b.FirstPublication), nullable(b.DateAcquired), nullable(b.DateAdded), nullable(b.LastUpdate),
	)
	if err != nil {
		return 0, fmt.Errorf("insert book %q: %w", b.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("book id: %w", err)
	}
	b.ID = id

	names := make([]string, 0, len(b.Authors))
	for i, a := range b.Authors {
		aid, err := w.authorID(ctx, a)
		if err != nil {
			return 0, err
		}
		if _, err := w.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_author (book, author, author_position) VALUES (?, ?, ?)", id, aid, i+1); err != nil {
			return 0, fmt.Errorf("link author: %w", err)
		}
		names = append(names, strings.TrimSpace(a.Given+" "+a.Family))
	}

	seriesNames := make([]string, 0, len(b.Series))
	for i, s := range b.Series {
		sid, err := w.seriesID(ctx, s)
		if err != nil {
			return 0, err
		}
		if _, err := w.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_series (book, series, series_num, series_position) VALUES (?, ?, ?, ?)",
			id, sid, nullable(s.Number), i+1); err != nil {
			return 0, fmt.Errorf("link series: %w", err)
		}
		seriesNames = append(seriesNames, s.Name)
	}

	for _, name := range b.Shelves {
		shid, err := w.shelfID(ctx, name)
		if err != nil {
			return 0, err
		}
		if _, err := w.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO book_bookshelf (book, shelf) VALUES (?, ?)", id, shid); err != nil {
			return 0, fmt.Errorf("link shelf: %w", err)
		}
	}

	if b.LoanedTo != "" {
		if _, err := w.tx.ExecContext(ctx, "INSERT INTO loan (book, loaned_to) VALUES (?, ?)", id, b.LoanedTo); err != nil {
			return 0, fmt.Errorf("insert loan: %w", err)
		}
	}

	if _, err := w.stmtFTS.ExecContext(ctx,
		id, b.Title, strings.Join(names, " "), strings.Join(seriesNames, " "), b.Description); err != nil {
		return 0, fmt.Errorf("index book %q: %w", b.Title, err)
	}

	w.count++
	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return id, fmt.Errorf("commit batch: %w", err)
		}
		if err := w.beginTx(); err != nil {
			return id, err
		}
		w.log.Debug("catalogue batch committed", zap.Int("books", w.count))
		w.count = 0
	}
	return id, nil
}

func (w *Writer) authorID(ctx context.Context, a Author) (int64, error) {
	key := Author{Family: strings.TrimSpace(a.Family), Given: strings.TrimSpace(a.Given)}
	if id, ok := w.authors[key]; ok {
		return id, nil
	}
	var id int64
	err := w.tx.QueryRowContext(ctx,
		"SELECT _id FROM authors WHERE family_name = ? AND given_names = ?", key.Family, key.Given).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, ierr := w.tx.ExecContext(ctx,
			"INSERT INTO authors (family_name, given_names, author_complete) VALUES (?, ?, ?)", key.Family, key.Given, a.Complete)
		if ierr != nil {
			return 0, fmt.Errorf("insert author %q: %w", key.Family, ierr)
		}
		id, err = res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("resolve author %q: %w", key.Family, err)
	}
	w.authors[key] = id
	return id, nil
}

func (w *Writer) seriesID(ctx context.Context, s SeriesEntry) (int64, error) {
	return w.lookup(ctx, w.series, s.Name,
		"SELECT _id FROM series WHERE series_name = ?",
		"INSERT INTO series (series_name, series_complete) VALUES (?, ?)", s.Complete)
}

func (w *Writer) shelfID(ctx context.Context, name string) (int64, error) {
	return w.lookup(ctx, w.shelves, name,
		"SELECT _id FROM bookshelf WHERE bookshelf = ?",
		"INSERT INTO bookshelf (bookshelf) VALUES (?)")
}

// lookup resolves a named row, inserting it when missing. extra values follow
// the name in the insert.
func (w *Writer) lookup(ctx context.Context, cache map[string]int64, name, query, insert string, extra ...any) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("empty name")
	}
	if id, ok := cache[name]; ok {
		return id, nil
	}
	var id int64
	err := w.tx.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		res, ierr := w.tx.ExecContext(ctx, insert, append([]any{name}, extra...)...)
		if ierr != nil {
			return 0, fmt.Errorf("insert %q: %w", name, ierr)
		}
		id, err = res.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("resolve %q: %w", name, err)
	}
	cache[name] = id
	return id, nil
}

// Close commits the pending batch and analyzes the catalogue. The database
// itself stays open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.commitTx(); err != nil {
		_ = w.tx.Rollback()
		return fmt.Errorf("commit catalogue: %w", err)
	}
	if _, err := w.db.Exec("ANALYZE"); err != nil {
		w.log.Warn("catalogue analyze failed", zap.Error(err))
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
