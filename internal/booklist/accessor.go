package booklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/schema"
)

// Row is one visible row of a page. Values holds every list column by name.
type Row struct {
	AbsolutePosition int64
	Level            int
	Kind             group.Kind
	Expanded         bool
	RootKey          string
	// BookID is zero on header rows.
	BookID int64
	Values map[string]any
}

// IsBook reports whether the row is a book rather than a header.
func (r Row) IsBook() bool { return r.BookID != 0 }

// BookPosition locates one occurrence of a book in the list.
type BookPosition struct {
	AbsolutePosition int64
	// Position is the row's index among visible rows, or that of the nearest
	// visible row before it.
	Position int64
	Visible  bool
}

// ColumnInfo describes a list table column.
type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	Default    string
	PrimaryKey bool
}

func (b *Builder) count(ctx context.Context, p stmtPurpose) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return 0, err
	}
	var n int64
	if err := b.queryRow(ctx, p, []any{&n}); err != nil {
		return 0, err
	}
	return n, nil
}

// PseudoCount returns the number of visible rows.
func (b *Builder) PseudoCount(ctx context.Context) (int64, error) {
	return b.count(ctx, stmtCountVisible)
}

// BookCount returns the number of book rows, counting a book once per place
// it appears.
func (b *Builder) BookCount(ctx context.Context) (int64, error) {
	return b.count(ctx, stmtCountBooks)
}

// UniqueBookCount returns the number of distinct books listed.
func (b *Builder) UniqueBookCount(ctx context.Context) (int64, error) {
	return b.count(ctx, stmtCountUniqueBooks)
}

// Page returns up to limit visible rows starting at visible row offset, in
// display order.
func (b *Builder) Page(ctx context.Context, offset, limit int64) ([]Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return nil, err
	}
	st, err := b.stmts.get(ctx, stmtPage, b.query)
	if err != nil {
		return nil, err
	}
	rows, err := st.QueryContext(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmtPage, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		out = append(out, makeRow(cols, vals))
	}
	return out, rows.Err()
}

// makeRow maps a page row. The first two columns are the absolute position
// and the overlay's expanded flag; the rest are the list table's.
func makeRow(cols []string, vals []any) Row {
	r := Row{
		AbsolutePosition: asInt(vals[0]),
		Expanded:         asInt(vals[1]) == 1,
		Values:           make(map[string]any, len(cols)-2),
	}
	for i := 2; i < len(cols); i++ {
		v := vals[i]
		if bs, ok := v.([]byte); ok {
			v = string(bs)
		}
		r.Values[cols[i]] = v
	}
	r.Level = int(asInt(r.Values[schema.Level.Name]))
	r.Kind = group.Kind(asInt(r.Values[schema.Kind.Name]))
	r.RootKey, _ = r.Values[schema.RootKey.Name].(string)
	if r.Kind == group.KindBook {
		r.BookID = asInt(r.Values[schema.Book.Name])
	}
	return r
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	}
	return 0
}

// Position converts an absolute position into a position among visible rows.
// A hidden row maps to the nearest visible row before it. Unknown positions
// map to 0.
func (b *Builder) Position(ctx context.Context, absPos int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return 0, err
	}
	id := rowID(absPos)
	var level, expanded, visible int
	if err := b.queryRow(ctx, stmtRowState, []any{&level, &expanded, &visible}, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, b.ignoreStale(ErrStaleRow, absPos)
		}
		return 0, err
	}
	return b.position(ctx, id, visible == 1)
}

func (b *Builder) position(ctx context.Context, id int64, visible bool) (int64, error) {
	var n int64
	if err := b.queryRow(ctx, stmtVisibleBefore, []any{&n}, id); err != nil {
		return 0, err
	}
	if !visible && n > 0 {
		n--
	}
	return n, nil
}

// BookAbsolutePositions returns every place book appears, in display order.
func (b *Builder) BookAbsolutePositions(ctx context.Context, book int64) ([]BookPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return nil, err
	}
	st, err := b.stmts.get(ctx, stmtBookRows, b.query)
	if err != nil {
		return nil, err
	}
	rows, err := st.QueryContext(ctx, book)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stmtBookRows, err)
	}
	type hit struct {
		id      int64
		visible bool
	}
	var hits []hit
	for rows.Next() {
		var h hit
		var vis int
		if err := rows.Scan(&h.id, &vis); err != nil {
			_ = rows.Close()
			return nil, err
		}
		h.visible = vis == 1
		hits = append(hits, h)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]BookPosition, 0, len(hits))
	for _, h := range hits {
		pos, err := b.position(ctx, h.id, h.visible)
		if err != nil {
			return nil, err
		}
		out = append(out, BookPosition{AbsolutePosition: h.id - 1, Position: pos, Visible: h.visible})
	}
	return out, nil
}

// ListColumns describes the list table as built, for debug dumps.
func (b *Builder) ListColumns(ctx context.Context) ([]ColumnInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return nil, err
	}
	rows, err := b.conn.QueryContext(ctx, "PRAGMA table_info("+b.name+")")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			c       ColumnInfo
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		c.NotNull = notNull != 0
		c.Default = dflt.String
		c.PrimaryKey = pk != 0
		out = append(out, c)
	}
	return out, rows.Err()
}
