// Package booklist materializes a hierarchical, grouped view of the catalogue
// into per-instance SQLite tables and keeps an expand/collapse overlay over
// it. A Builder owns one list; several builders may be open on one database.
//
// A typical session:
//
//	b, _ := booklist.New(ctx, db, booklist.Options{Style: st})
//	defer b.Close()
//	_ = b.Build(ctx, booklist.PreferPreserved, 0)
//	rows, _ := b.Page(ctx, 0, 50)
package booklist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/agentic-research/booklist/internal/filter"
	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/idset"
	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/sqlgen"
	"github.com/agentic-research/booklist/internal/style"
	"github.com/agentic-research/booklist/internal/summary"
)

// State is the build progress of a builder.
type State int

const (
	StateUninitialized State = iota
	StateTablesCreated
	StateBaseRowsInserted
	StateHeadersGenerated
	StateIndexed
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTablesCreated:
		return "tables created"
	case StateBaseRowsInserted:
		return "base rows inserted"
	case StateHeadersGenerated:
		return "headers generated"
	case StateIndexed:
		return "indexed"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Preferred is the initial expand/collapse state of a build.
type Preferred int

const (
	// PreferPreserved restores the persisted state of level-1 nodes.
	PreferPreserved Preferred = iota
	PreferExpanded
	PreferCollapsed
)

func (p Preferred) String() string {
	switch p {
	case PreferPreserved:
		return "preserved"
	case PreferExpanded:
		return "expanded"
	case PreferCollapsed:
		return "collapsed"
	}
	return fmt.Sprintf("Preferred(%d)", int(p))
}

// ParsePreferred accepts "preserved", "expanded" or "collapsed".
func ParsePreferred(s string) (Preferred, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preserved", "preserve", "saved":
		return PreferPreserved, nil
	case "expanded", "expand":
		return PreferExpanded, nil
	case "collapsed", "collapse":
		return PreferCollapsed, nil
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

// Options configure a Builder.
type Options struct {
	// Style supplies the group levels, preferences and style filters. A nil
	// style builds an ungrouped list.
	Style *style.Style
	// Strategy selects how header rows are generated.
	Strategy sqlgen.Strategy
	// Collation used for text sorting and grouping. Defaults to NOCASE.
	Collation string
	// Registry allocates instance ids. Defaults to DefaultRegistry.
	Registry *Registry
	Logger   *zap.Logger
}

type extraDomain struct {
	domain *schema.Domain
	expr   string
	sorted bool
}

// Builder materializes one booklist. It is safe for concurrent use; every
// operation holds the builder's lock for its duration.
type Builder struct {
	mu sync.Mutex

	id        uint32
	name      string
	conn      *sql.Conn
	reg       *Registry
	log       *zap.Logger
	style     *style.Style
	strategy  sqlgen.Strategy
	collation string

	extras    []extraDomain
	extraExpr map[string]string
	joins     group.Needs

	generic  []filter.Filter
	loanedTo filter.Filter
	author   filter.Filter
	title    filter.Filter
	series   filter.Filter
	text     filter.Filter
	shelf    *int64
	// idsKey is the registered idset key, kept from first use until Close.
	idsKey    string
	idsActive bool

	plan      *sqlgen.Plan
	drop      []string
	state     State
	highlight int64
	stmts     *statements
	flats     map[uint32]*FlattenedBooklist
	closed    bool
}

// New pins a connection from db for the builder's temporary tables and makes
// sure the persisted node-state table exists.
func New(ctx context.Context, db *sql.DB, opts Options) (*Builder, error) {
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Style == nil {
		opts.Style = &style.Style{}
	}
	if opts.Collation == "" {
		opts.Collation = "NOCASE"
	}
	if !validIdent(opts.Collation) {
		return nil, fmt.Errorf("invalid collation %q", opts.Collation)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	ns := schema.NodeSettings
	for _, stmt := range []string{
		ns.CreateIfMissingSQL(),
		"CREATE UNIQUE INDEX IF NOT EXISTS " + ns.Name + "_IX1 ON " + ns.Name + " (kind, root_key)",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, &StorageError{Stage: "create node settings", Err: err}
		}
	}

	id := opts.Registry.Allocate()
	b := &Builder{
		id:        id,
		name:      schema.ListTable(id).Name,
		conn:      conn,
		reg:       opts.Registry,
		log:       opts.Logger.With(zap.Uint32("instance", id)),
		style:     opts.Style,
		strategy:  opts.Strategy,
		collation: opts.Collation,
		extraExpr: make(map[string]string),
		stmts:     newStatements(conn),
		flats:     make(map[uint32]*FlattenedBooklist),
	}
	b.log.Debug("booklist opened", zap.String("strategy", b.strategy.String()), zap.Int("levels", len(b.style.Levels)))
	return b, nil
}

// ID is the instance id that namespaces this builder's tables.
func (b *Builder) ID() uint32 { return b.id }

// State reports the build progress.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Levels returns the number of group levels. Book rows sit one level deeper.
func (b *Builder) Levels() int {
	return len(b.style.Levels)
}

// RequireDomain adds a column to every book row, sorted after the group
// levels when sorted is set. A domain already required with a different
// expression is rejected here; conflicts with group columns surface from Build.
func (b *Builder) RequireDomain(d *schema.Domain, expr string, sorted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	expr = strings.TrimSpace(expr)
	if prev, ok := b.extraExpr[d.Name]; ok && expr != "" && prev != "" && !strings.EqualFold(prev, expr) {
		return fmt.Errorf("%w: %s is %q, required as %q", summary.ErrConflictingDomain, d.Name, prev, expr)
	}
	if prev := b.extraExpr[d.Name]; prev == "" {
		b.extraExpr[d.Name] = expr
	}
	b.extras = append(b.extras, extraDomain{domain: d, expr: expr, sorted: sorted})
	return nil
}

// RequireJoin adds an optional join the groups would not otherwise need, so
// required domains and generic filters can reference it.
func (b *Builder) RequireJoin(t *schema.Table) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch t.Name {
	case schema.Loans.Name:
		b.joins.Loan = true
	case schema.Bookshelves.Name, schema.BookBookshelf.Name:
		b.joins.Bookshelf = true
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedJoin, t.Name)
	}
	return nil
}

// SetFilterGeneric adds a raw SQL criterion over the catalogue aliases.
func (b *Builder) SetFilterGeneric(criterion string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generic = append(b.generic, filter.Expr(criterion))
}

// SetFilterOnLoanedToPerson keeps books lent to person. Empty clears it.
func (b *Builder) SetFilterOnLoanedToPerson(person string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loanedTo = filter.LoanedTo(person)
}

func (b *Builder) SetFilterOnAuthorName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.author = filter.AuthorName(name)
}

func (b *Builder) SetFilterOnTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = filter.Wildcard{Column: schema.Books.Dot("title"), Value: title}
}

func (b *Builder) SetFilterOnSeriesName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.series = filter.Wildcard{Column: schema.Series.Dot("series_name"), Value: name}
}

// SetFilterOnBookshelfID keeps books on shelf id. A negative id clears it.
func (b *Builder) SetFilterOnBookshelfID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id < 0 {
		b.shelf = nil
		return
	}
	b.shelf = &id
}

// SetFilterOnText keeps books whose full-text entry matches every word of
// query, case-folded for the style's locale.
func (b *Builder) SetFilterOnText(query string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = filter.Text(cases.Lower(b.style.Locale).String(query))
}

// SetFilterOnBookIDs keeps only the listed books. A nil slice clears it.
func (b *Builder) SetFilterOnBookIDs(ids []int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	mod, err := idset.Register()
	if err != nil {
		return err
	}
	// The set stays registered, empty, until Close: dropping the previous
	// generation's virtual table may need to reconnect to it.
	key := b.idsTable()
	if err := mod.Put(key, ids); err != nil {
		return err
	}
	b.idsKey = key
	b.idsActive = ids != nil
	return nil
}

func (b *Builder) idsTable() string { return b.name + "_ids" }

func (b *Builder) filters(shelfGrouped bool) []filter.Filter {
	out := append([]filter.Filter(nil), b.style.Filters...)
	out = append(out, b.generic...)
	out = append(out, b.loanedTo, b.author, b.title, b.series, b.text)
	if b.shelf != nil {
		out = append(out, filter.Bookshelf(*b.shelf, shelfGrouped))
	}
	if b.idsActive {
		out = append(out, filter.InTable{Table: b.idsTable(), Column: "id"})
	}
	return out
}

// Build materializes the list in one transaction and fills the navigation
// overlay in the preferred state. A highlight book id above zero marks that
// book's rows as selected. On failure the builder is left uninitialized and
// the previous generation, if any, is no longer reachable.
func (b *Builder) Build(ctx context.Context, preferred Preferred, highlight int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.state = StateUninitialized
	plan, err := b.compile(ctx, highlight)
	if err != nil {
		return err
	}
	b.drop = plan.Drop
	if err := b.generate(ctx, plan, preferred); err != nil {
		b.plan = nil
		return err
	}
	b.plan = plan
	b.highlight = highlight
	return nil
}

// Rebuild replays the last build with the persisted node state.
func (b *Builder) Rebuild(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.plan == nil {
		return ErrNotBuilt
	}
	plan := b.plan
	if err := b.generate(ctx, plan, PreferPreserved); err != nil {
		b.plan = nil
		return err
	}
	return nil
}

func (b *Builder) compile(ctx context.Context, highlight int64) (*sqlgen.Plan, error) {
	st := b.style
	list := schema.ListTable(b.id)
	acc := summary.New(list)
	leaf := len(st.Levels) + 1

	base := []extraDomain{
		{domain: schema.Level, expr: strconv.Itoa(leaf)},
		{domain: schema.Kind, expr: strconv.Itoa(int(group.KindBook))},
		{domain: schema.Book, expr: schema.Books.Dot("_id")},
		{domain: schema.BookCount, expr: "1"},
		{domain: schema.UUID, expr: schema.Books.Dot("uuid")},
	}
	if highlight > 0 {
		base = append(base, extraDomain{
			domain: schema.Selected,
			expr:   fmt.Sprintf("CASE WHEN %s = %d THEN 1 ELSE 0 END", schema.Books.Dot("_id"), highlight),
		})
	}
	for _, x := range base {
		if err := acc.Declare(x.domain, x.expr, summary.FlagNone); err != nil {
			return nil, err
		}
	}

	env := group.Env{
		Dates:             summary.NewDateParts(st.Unknown, st.Locale),
		SortAuthorByGiven: st.SortAuthorByGiven,
		Descending:        b.strategy.UsesTriggers(),
	}
	needs := b.joins
	levels := make([]sqlgen.LevelSpec, 0, len(st.Levels))
	shelfGrouped := false
	for _, l := range st.Levels {
		if _, err := group.Declare(acc, l, env, &needs); err != nil {
			return nil, err
		}
		levels = append(levels, sqlgen.LevelSpec{Kind: l.Kind, Domains: acc.CloneGroups()})
		if l.Kind == group.KindBookshelf {
			shelfGrouped = true
		}
	}

	if err := acc.Declare(schema.Level, "", summary.FlagSorted); err != nil {
		return nil, err
	}
	for _, x := range b.extras {
		flags := summary.FlagNone
		if x.sorted {
			flags = summary.FlagSorted
		}
		if err := acc.Declare(x.domain, x.expr, flags); err != nil {
			return nil, err
		}
	}
	if b.shelf != nil && !shelfGrouped {
		needs.Bookshelf = true
	}

	caseSensitive, err := b.probeCollation(ctx)
	if err != nil {
		return nil, err
	}
	plan, err := sqlgen.Compile(sqlgen.Input{
		List:          list,
		Nav:           schema.NavTable(b.id),
		Acc:           acc,
		Levels:        levels,
		Needs:         needs,
		Filters:       b.filters(shelfGrouped),
		Strategy:      b.strategy,
		Collation:     b.collation,
		CaseSensitive: caseSensitive,
	})
	if err != nil {
		return nil, err
	}

	plan.Drop = append(plan.Drop, "DROP TABLE IF EXISTS temp."+b.idsTable())
	if b.idsActive {
		create := fmt.Sprintf("CREATE VIRTUAL TABLE temp.%s USING %s(%s)", b.idsTable(), idset.ModuleName, b.idsKey)
		plan.Prepare = append([]string{create}, plan.Prepare...)
	}
	return plan, nil
}

// probeCollation reports whether the configured collation tells 'a' from 'B'
// by case, in which case text sort keys are folded with lower().
func (b *Builder) probeCollation(ctx context.Context) (bool, error) {
	var less int
	err := b.conn.QueryRowContext(ctx, "SELECT 'a' < 'B' COLLATE "+b.collation).Scan(&less)
	if err != nil {
		return false, &StorageError{Stage: "probe collation", Err: err}
	}
	return less == 0, nil
}

func (b *Builder) generate(ctx context.Context, plan *sqlgen.Plan, preferred Preferred) error {
	b.state = StateUninitialized
	if err := b.stmts.reset(); err != nil {
		b.log.Warn("closing cached statements", zap.Error(err))
	}
	b.dropFlattened(ctx)

	start := time.Now()
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Stage: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	nav := plan.NavPreserved
	switch preferred {
	case PreferExpanded:
		nav = plan.NavExpanded
	case PreferCollapsed:
		nav = plan.NavCollapsed
	}

	stages := []struct {
		name  string
		next  State
		stmts []string
	}{
		{"create tables", StateTablesCreated, concat(plan.Drop, []string{plan.CreateList, plan.CreateNav}, plan.Prepare)},
		{"insert books", StateBaseRowsInserted, []string{plan.BaseInsert}},
		{"generate headers", StateHeadersGenerated, concat(plan.Headers, plan.Suppress)},
		{"index", StateIndexed, concat(plan.ListIndexes, []string{nav}, plan.NavIndexes, plan.Analyze)},
	}
	for _, s := range stages {
		t := time.Now()
		for _, stmt := range s.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				b.state = StateUninitialized
				b.log.Debug("build stage failed", zap.String("stage", s.name), zap.String("sql", stmt), zap.Error(err))
				return &StorageError{Stage: s.name, Err: err}
			}
		}
		b.state = s.next
		b.log.Debug("build stage", zap.String("stage", s.name), zap.Duration("elapsed", time.Since(t)))
	}

	if err := tx.Commit(); err != nil {
		b.state = StateUninitialized
		return &StorageError{Stage: "commit", Err: err}
	}
	b.state = StateReady
	b.log.Debug("booklist built",
		zap.String("strategy", plan.Strategy.String()),
		zap.String("state", preferred.String()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Close drops the builder's tables and releases its connection. Cleanup
// failures are logged, not returned.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	ctx := context.Background()

	if err := b.stmts.reset(); err != nil {
		b.log.Warn("closing cached statements", zap.Error(err))
	}
	b.dropFlattened(ctx)
	for _, stmt := range b.drop {
		if _, err := b.conn.ExecContext(ctx, stmt); err != nil {
			b.log.Warn("dropping booklist table", zap.String("sql", stmt), zap.Error(err))
		}
	}
	if b.idsKey != "" {
		if mod, err := idset.Register(); err == nil {
			mod.Delete(b.idsKey)
		}
	}
	b.reg.Release(b.id)
	b.state = StateUninitialized
	b.plan = nil
	if err := b.conn.Close(); err != nil {
		b.log.Warn("releasing connection", zap.Error(err))
	}
	b.log.Debug("booklist closed")
	return nil
}

// ready is called with b.mu held.
func (b *Builder) ready() error {
	if b.closed {
		return ErrClosed
	}
	if b.state != StateReady || b.plan == nil {
		return ErrNotBuilt
	}
	return nil
}

func (b *Builder) navName() string { return b.name + "_nav" }

// query renders the SQL of a cached statement for the current plan.
func (b *Builder) query(p stmtPurpose) string {
	list, nav, ns := b.name, b.navName(), schema.NodeSettings.Name
	leaf := b.plan.LeafLevel
	top := int(b.plan.TopKind)

	switch p {
	case stmtCountVisible:
		return "SELECT COUNT(*) FROM " + nav + " WHERE visible = 1"
	case stmtCountBooks:
		return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE level = %d", nav, leaf)
	case stmtCountUniqueBooks:
		return fmt.Sprintf("SELECT COUNT(DISTINCT book) FROM %s WHERE level = %d", list, leaf)
	case stmtPage:
		return fmt.Sprintf("SELECT blrp._id - 1 AS %s, blrp.expanded AS nav_expanded, bl.*"+
			" FROM %s blrp JOIN %s bl ON bl._id = blrp.real_row_id"+
			" WHERE blrp.visible = 1 ORDER BY blrp._id LIMIT ? OFFSET ?", schema.AbsolutePosition.Name, nav, list)
	case stmtRowState:
		return "SELECT level, expanded, visible FROM " + nav + " WHERE _id = ?"
	case stmtIntervalEnd:
		return fmt.Sprintf("SELECT Coalesce(min(_id), (SELECT Coalesce(max(_id), 0) + 1 FROM %s))"+
			" FROM %s WHERE _id > ? AND level <= ?", nav, nav)
	case stmtSetInterval:
		return "UPDATE " + nav + " SET visible = ?, expanded = ? WHERE _id > ? AND _id < ? AND level > ?"
	case stmtSetExpanded:
		return "UPDATE " + nav + " SET expanded = ? WHERE _id = ?"
	case stmtForgetNode:
		return fmt.Sprintf("DELETE FROM %s WHERE kind = %d AND root_key = (SELECT root_key FROM %s WHERE _id = ?)",
			ns, top, nav)
	case stmtRememberNode:
		return fmt.Sprintf("INSERT OR IGNORE INTO %s (kind, root_key) SELECT DISTINCT %d, root_key FROM %s"+
			" WHERE level = 1 AND expanded = 1 AND root_key = (SELECT root_key FROM %s WHERE _id = ?)",
			ns, top, nav, nav)
	case stmtAncestor:
		return "SELECT _id, level, expanded FROM " + nav + " WHERE _id < ? AND level <= ? ORDER BY _id DESC LIMIT 1"
	case stmtVisibleBefore:
		return "SELECT COUNT(*) FROM " + nav + " WHERE visible = 1 AND _id < ?"
	case stmtBookRows:
		return fmt.Sprintf("SELECT blrp._id, blrp.visible FROM %s bl JOIN %s blrp ON blrp.real_row_id = bl._id"+
			" WHERE bl.level = %d AND bl.book = ? ORDER BY blrp._id", list, nav, leaf)
	case stmtExpandAll:
		return "UPDATE " + nav + " SET visible = 1, expanded = 1"
	case stmtCollapseAll:
		return "UPDATE " + nav + " SET expanded = 0, visible = CASE WHEN level = 1 THEN 1 ELSE 0 END"
	case stmtForgetKind:
		return fmt.Sprintf("DELETE FROM %s WHERE kind = %d", ns, top)
	case stmtRememberAll:
		return fmt.Sprintf("INSERT OR IGNORE INTO %s (kind, root_key) SELECT DISTINCT %d, root_key FROM %s WHERE level = 1",
			ns, top, nav)
	}
	panic(fmt.Sprintf("booklist: no query for %s", p))
}

func (b *Builder) exec(ctx context.Context, p stmtPurpose, args ...any) error {
	st, err := b.stmts.get(ctx, p, b.query)
	if err != nil {
		return err
	}
	if _, err := st.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

func (b *Builder) queryRow(ctx context.Context, p stmtPurpose, dest []any, args ...any) error {
	st, err := b.stmts.get(ctx, p, b.query)
	if err != nil {
		return err
	}
	if err := st.QueryRowContext(ctx, args...).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("%s: %w", p, err)
	}
	return nil
}

// atomic runs fn inside a savepoint on the pinned connection, so the cached
// statements can be used without re-preparing them in a transaction.
func (b *Builder) atomic(ctx context.Context, name string, fn func() error) (err error) {
	if _, err := b.conn.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			if _, rerr := b.conn.ExecContext(ctx, "ROLLBACK TO "+name); rerr != nil {
				b.log.Warn("rollback savepoint", zap.String("savepoint", name), zap.Error(rerr))
			}
		}
		if _, rerr := b.conn.ExecContext(ctx, "RELEASE "+name); rerr != nil && err == nil {
			err = fmt.Errorf("release %s: %w", name, rerr)
		}
	}()
	return fn()
}

func validIdent(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}
