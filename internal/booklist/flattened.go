package booklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentic-research/booklist/internal/schema"
)

// FlattenedBooklist is every book row of a built list in display order,
// regardless of visibility. It backs next/previous book navigation and lives
// until it is closed or the list is rebuilt.
type FlattenedBooklist struct {
	b     *Builder
	id    uint32
	table *schema.Table
}

// CreateFlattenedBooklist snapshots the current book order.
func (b *Builder) CreateFlattenedBooklist(ctx context.Context) (*FlattenedBooklist, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ready(); err != nil {
		return nil, err
	}
	n := b.reg.AllocateFlattened()
	t := schema.FlattenedTable(n)
	fill := fmt.Sprintf("INSERT INTO %s (_id, book) SELECT blrp._id, bl.book FROM %s blrp JOIN %s bl ON bl._id = blrp.real_row_id"+
		" WHERE bl.level = %d ORDER BY blrp._id", t.Name, b.navName(), b.name, b.plan.LeafLevel)

	for _, stmt := range []string{t.DropSQL(), t.CreateSQL(), fill} {
		if _, err := b.conn.ExecContext(ctx, stmt); err != nil {
			_, _ = b.conn.ExecContext(ctx, t.DropSQL())
			return nil, &StorageError{Stage: "flatten", Err: err}
		}
	}
	f := &FlattenedBooklist{b: b, id: n, table: t}
	b.flats[n] = f
	return f, nil
}

// dropFlattened is called with b.mu held.
func (b *Builder) dropFlattened(ctx context.Context) {
	for n, f := range b.flats {
		if _, err := b.conn.ExecContext(ctx, f.table.DropSQL()); err != nil {
			b.log.Warn("dropping flattened list", zap.String("table", f.table.Name), zap.Error(err))
		}
		delete(b.flats, n)
	}
}

// Name is the table holding the snapshot.
func (f *FlattenedBooklist) Name() string { return f.table.Name }

func (f *FlattenedBooklist) live() error {
	if f.b.closed {
		return ErrClosed
	}
	if _, ok := f.b.flats[f.id]; !ok {
		return ErrStaleRow
	}
	return nil
}

// Count returns the number of book rows.
func (f *FlattenedBooklist) Count(ctx context.Context) (int64, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if err := f.live(); err != nil {
		return 0, err
	}
	var n int64
	err := f.b.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+f.table.Name).Scan(&n)
	return n, err
}

// At returns the navigation row id and book id of the i-th book row.
func (f *FlattenedBooklist) At(ctx context.Context, i int64) (navID, book int64, err error) {
	return f.one(ctx, "SELECT _id, book FROM "+f.table.Name+" ORDER BY _id LIMIT 1 OFFSET ?", i)
}

// Next returns the book row after navigation row navID.
func (f *FlattenedBooklist) Next(ctx context.Context, navID int64) (int64, int64, error) {
	return f.one(ctx, "SELECT _id, book FROM "+f.table.Name+" WHERE _id > ? ORDER BY _id LIMIT 1", navID)
}

// Previous returns the book row before navigation row navID.
func (f *FlattenedBooklist) Previous(ctx context.Context, navID int64) (int64, int64, error) {
	return f.one(ctx, "SELECT _id, book FROM "+f.table.Name+" WHERE _id < ? ORDER BY _id DESC LIMIT 1", navID)
}

// one returns ErrStaleRow when no row matches.
func (f *FlattenedBooklist) one(ctx context.Context, query string, arg int64) (int64, int64, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if err := f.live(); err != nil {
		return 0, 0, err
	}
	var navID, book int64
	err := f.b.conn.QueryRowContext(ctx, query, arg).Scan(&navID, &book)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrStaleRow
	}
	return navID, book, err
}

// IndexOf returns the index of navigation row navID, or -1.
func (f *FlattenedBooklist) IndexOf(ctx context.Context, navID int64) (int64, error) {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if err := f.live(); err != nil {
		return 0, err
	}
	var idx int64
	err := f.b.conn.QueryRowContext(ctx,
		"SELECT CASE WHEN EXISTS(SELECT 1 FROM "+f.table.Name+" WHERE _id = ?1)"+
			" THEN (SELECT COUNT(*) FROM "+f.table.Name+" WHERE _id < ?1) ELSE -1 END", navID).Scan(&idx)
	return idx, err
}

// Close drops the snapshot. It is a no-op after the list was rebuilt or closed.
func (f *FlattenedBooklist) Close() error {
	f.b.mu.Lock()
	defer f.b.mu.Unlock()
	if f.b.closed {
		return nil
	}
	if _, ok := f.b.flats[f.id]; !ok {
		return nil
	}
	delete(f.b.flats, f.id)
	if _, err := f.b.conn.ExecContext(context.Background(), f.table.DropSQL()); err != nil {
		return fmt.Errorf("drop %s: %w", f.table.Name, err)
	}
	return nil
}
