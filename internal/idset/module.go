// Package idset exposes in-memory roaring bitmaps of row ids to SQLite as a
// virtual table, so a large id list can filter a query without being spelled
// out as an IN (...) literal.
//
//	CREATE VIRTUAL TABLE temp.picked USING booklist_idset(<set id>);
//	SELECT ... WHERE b._id IN (SELECT id FROM picked);
package idset

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"modernc.org/sqlite/vtab"
)

// ModuleName is the name used in CREATE VIRTUAL TABLE ... USING.
const ModuleName = "booklist_idset"

var (
	once      sync.Once
	singleton *Module
	initErr   error
)

// Module implements vtab.Module. It is a process-wide singleton because
// modernc.org/sqlite registers modules with the driver, not per database.
type Module struct {
	mu   sync.RWMutex
	sets map[string]*roaring.Bitmap
}

// Register registers the module with the SQLite driver. Only the first call
// registers; later calls return the same module.
func Register() (*Module, error) {
	once.Do(func() {
		singleton = &Module{sets: make(map[string]*roaring.Bitmap)}
		// db parameter is unused by the engine; pass nil.
		if err := vtab.RegisterModule(nil, ModuleName, singleton); err != nil {
			initErr = fmt.Errorf("idset: register module: %w", err)
			singleton = nil
		}
	})
	return singleton, initErr
}

// Put stores ids under key, replacing any previous set. Tables already
// created over key see the new contents on their next scan.
func (m *Module) Put(key string, ids []int64) error {
	bm := roaring.New()
	for _, id := range ids {
		if id < 0 || id > int64(^uint32(0)) {
			return fmt.Errorf("idset: id %d out of range", id)
		}
		bm.Add(uint32(id))
	}
	m.mu.Lock()
	m.sets[key] = bm
	m.mu.Unlock()
	return nil
}

// Len returns the cardinality of the set under key.
func (m *Module) Len(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if bm, ok := m.sets[key]; ok {
		return int(bm.GetCardinality())
	}
	return 0
}

// Delete forgets the set under key.
func (m *Module) Delete(key string) {
	m.mu.Lock()
	delete(m.sets, key)
	m.mu.Unlock()
}

func (m *Module) contains(key string, id uint32) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bm, ok := m.sets[key]
	return ok && bm.Contains(id)
}

func (m *Module) snapshot(key string) ([]uint32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bm, ok := m.sets[key]
	if !ok {
		return nil, false
	}
	return bm.ToArray(), true
}

// ---------------------------------------------------------------------------
// vtab.Module
// ---------------------------------------------------------------------------

func (m *Module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	// argv[0] = module name, argv[1] = database name, argv[2] = table name,
	// argv[3]... = arguments inside ().
	if len(args) < 4 {
		return nil, fmt.Errorf("%s: missing set argument (expected USING %s(key))", ModuleName, ModuleName)
	}
	key := args[3]

	m.mu.RLock()
	_, ok := m.sets[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: unknown set %q", ModuleName, key)
	}

	if err := ctx.Declare("CREATE TABLE x(id INTEGER)"); err != nil {
		return nil, err
	}
	return &setTable{mod: m, key: key}, nil
}

func (m *Module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.Create(ctx, args)
}

// ---------------------------------------------------------------------------
// vtab.Table
// ---------------------------------------------------------------------------

type setTable struct {
	mod *Module
	key string
}

func (t *setTable) BestIndex(info *vtab.IndexInfo) error {
	for i := range info.Constraints {
		c := &info.Constraints[i]
		if !c.Usable || c.Column != 0 || c.Op != vtab.OpEQ {
			continue
		}
		// Membership test against the bitmap.
		c.ArgIndex = 0
		c.Omit = true
		info.IdxNum = 1
		info.EstimatedCost = 1
		info.EstimatedRows = 1
		return nil
	}
	// Full scan.
	info.IdxNum = 0
	info.EstimatedCost = 1000
	info.EstimatedRows = 1000
	return nil
}

func (t *setTable) Open() (vtab.Cursor, error) {
	return &setCursor{table: t}, nil
}

func (t *setTable) Disconnect() error { return nil }
func (t *setTable) Destroy() error    { return nil }

// ---------------------------------------------------------------------------
// vtab.Cursor
// ---------------------------------------------------------------------------

type setCursor struct {
	table *setTable
	ids   []uint32
	pos   int
}

func (c *setCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.ids = c.ids[:0]
	c.pos = 0

	if idxNum != 1 {
		c.ids, _ = c.table.mod.snapshot(c.table.key)
		return nil
	}
	want, ok := vals[0].(int64)
	if !ok || want < 0 || want > int64(^uint32(0)) {
		return nil
	}
	if c.table.mod.contains(c.table.key, uint32(want)) {
		c.ids = append(c.ids, uint32(want))
	}
	return nil
}

func (c *setCursor) Next() error {
	c.pos++
	return nil
}

func (c *setCursor) Eof() bool {
	return c.pos >= len(c.ids)
}

func (c *setCursor) Column(col int) (vtab.Value, error) {
	if c.pos >= len(c.ids) || col != 0 {
		return nil, nil
	}
	return int64(c.ids[c.pos]), nil
}

func (c *setCursor) Rowid() (int64, error) {
	if c.pos >= len(c.ids) {
		return 0, nil
	}
	return int64(c.ids[c.pos]), nil
}

func (c *setCursor) Close() error {
	c.ids = nil
	return nil
}
