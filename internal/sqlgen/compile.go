// Package sqlgen compiles accumulated booklist declarations into the SQL that
// materializes, indexes and tears down a list. It never touches a database.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/booklist/internal/filter"
	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/summary"
)

var (
	ErrEmptyProjection   = errors.New("empty projection")
	ErrUnknownSortColumn = errors.New("unknown sort column")
)

// Strategy selects how header rows are generated.
type Strategy int

const (
	// NestedTriggers fires one BEFORE INSERT trigger per group level.
	NestedTriggers Strategy = iota
	// FlatTriggers inserts through a view whose single INSTEAD OF trigger
	// emits all headers.
	FlatTriggers
	// BottomUp inserts leaves unordered and aggregates each level with GROUP BY.
	BottomUp
)

// UsesTriggers reports whether headers are emitted while leaves are inserted
// in sorted order. Only these strategies honour descending sorts.
func (s Strategy) UsesTriggers() bool {
	return s == NestedTriggers || s == FlatTriggers
}

func (s Strategy) String() string {
	switch s {
	case NestedTriggers:
		return "nested"
	case FlatTriggers:
		return "flat"
	case BottomUp:
		return "old"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy accepts "nested", "flat" or "old".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nested", "default":
		return NestedTriggers, nil
	case "flat":
		return FlatTriggers, nil
	case "old", "bottom-up", "bottomup":
		return BottomUp, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

// LevelSpec is a compiled group level: its kind and the cumulative grouped
// domains of this and every shallower level.
type LevelSpec struct {
	Kind    group.Kind
	Domains []*schema.Domain
}

// Input is everything the compiler needs. Acc must have finished accumulating.
type Input struct {
	List     *schema.Table
	Nav      *schema.Table
	Acc      *summary.Accumulator
	Levels   []LevelSpec
	Needs    group.Needs
	Filters  []filter.Filter
	Strategy Strategy
	// Collation applied to text sort keys and comparisons.
	Collation string
	// CaseSensitive reports whether Collation distinguishes case.
	CaseSensitive bool
}

// Plan is the compiled SQL of one list generation, in execution order.
type Plan struct {
	Strategy Strategy

	// Drop removes every object of the list; it runs before each generation
	// and on close.
	Drop         []string
	CreateList   string
	CreateNav    string
	Prepare      []string
	BaseInsert   string
	Headers      []string
	Suppress     []string
	ListIndexes  []string
	NavPreserved string
	NavExpanded  string
	NavCollapsed string
	NavIndexes   []string
	Analyze      []string

	// RootKey is the SQL expression computing a row's root key.
	RootKey string
	// OrderBy is the display order over the list table columns.
	OrderBy string
	// TopKind is the kind of level 1, used to key persisted node state.
	TopKind group.Kind
	// LeafLevel is the level of book rows.
	LeafLevel int
}

type compiler struct {
	in      Input
	sort    SortList
	cols    []summary.Column
	curr    string
	view    string
	rootKey string
}

// Compile validates in and renders its Plan. Validation errors are returned
// before any statement exists, so nothing half-built ever reaches a database.
func Compile(in Input) (*Plan, error) {
	c := &compiler{
		in:   in,
		cols: in.Acc.Projection(),
		curr: in.List.Name + "_curr",
		view: in.List.Name + "_view",
		sort: SortList{collation: in.Collation, fold: in.CaseSensitive},
	}
	if len(c.cols) == 0 {
		return nil, ErrEmptyProjection
	}
	if c.sort.collation == "" {
		c.sort.collation = "NOCASE"
	}
	if err := c.orderKeys(); err != nil {
		return nil, err
	}

	rootKey, err := c.rootKeyExpr()
	if err != nil {
		return nil, err
	}
	c.rootKey = rootKey

	p := &Plan{
		Strategy:  in.Strategy,
		RootKey:   rootKey,
		OrderBy:   c.sort.OrderBy(in.List.Alias + "."),
		TopKind:   group.KindBook,
		LeafLevel: len(in.Levels) + 1,
	}
	if len(in.Levels) > 0 {
		p.TopKind = in.Levels[0].Kind
	}

	p.Drop = c.teardown()
	p.CreateList = in.List.CreateSQL()
	p.CreateNav = in.Nav.CreateSQL()
	p.BaseInsert = c.baseInsert()

	switch in.Strategy {
	case NestedTriggers:
		p.Prepare = append(p.Prepare, c.createCurr())
		p.Prepare = append(p.Prepare, c.nestedTriggers()...)
	case FlatTriggers:
		p.Prepare = append(p.Prepare, c.createCurr(), c.createView(), c.flatTrigger())
	case BottomUp:
		p.Headers = c.groupByPasses()
		if !in.CaseSensitive {
			p.ListIndexes = append(p.ListIndexes, in.List.IndexSQL("IX1", false, c.sort.IndexColumns()))
		}
	default:
		return nil, fmt.Errorf("unknown strategy %d", int(in.Strategy))
	}
	p.Suppress = c.suppress()

	navOrder := in.List.Dot(schema.ID.Name)
	if !in.Strategy.UsesTriggers() {
		navOrder = p.OrderBy
	}
	p.NavPreserved = c.navInsert(p.TopKind, navOrder, statePreserved)
	p.NavExpanded = c.navInsert(p.TopKind, navOrder, stateExpanded)
	p.NavCollapsed = c.navInsert(p.TopKind, navOrder, stateCollapsed)

	nav := in.Nav
	p.NavIndexes = []string{
		nav.IndexSQL("IX1", false, schema.Level.Name, schema.Expanded.Name, schema.RootKey.Name),
		// Without this every count and position lookup scans the overlay.
		nav.IndexSQL("IX2", true, schema.RealRowID.Name),
	}
	p.Analyze = []string{"ANALYZE " + in.List.Name, "ANALYZE " + nav.Name}
	return p, nil
}

// orderKeys lays out the sort list as the grouped keys of every level, then
// the sorted-only keys declared alongside them, then level, then whatever was
// declared after level. Every row of a node therefore sorts between the node's
// header and the next header at the same or a shallower level.
func (c *compiler) orderKeys() error {
	desc := c.in.Strategy.UsesTriggers()
	var within []summary.SortKey
	seenLevel := false
	for _, k := range c.in.Acc.SortKeys() {
		if !c.in.Acc.Projected(k.Domain.Name) {
			return fmt.Errorf("%w: %s", ErrUnknownSortColumn, k.Domain.Name)
		}
		switch {
		case k.Domain.Name == schema.Level.Name:
			seenLevel = true
			c.addKeys(within, desc)
			within = nil
			c.sort.Add(schema.Level, false)
		case !seenLevel && !k.Grouped:
			within = append(within, k)
		default:
			c.sort.Add(k.Domain, k.Descending && desc)
		}
	}
	if !c.in.Acc.Projected(schema.Level.Name) {
		return fmt.Errorf("%w: %s", ErrUnknownSortColumn, schema.Level.Name)
	}
	c.addKeys(within, desc)
	c.sort.Add(schema.Level, false)
	return nil
}

func (c *compiler) addKeys(keys []summary.SortKey, desc bool) {
	for _, k := range keys {
		c.sort.Add(k.Domain, k.Descending && desc)
	}
}

func (c *compiler) teardown() []string {
	return []string{
		"DROP VIEW IF EXISTS " + c.view,
		"DROP TABLE IF EXISTS " + c.curr,
		c.in.Nav.DropSQL(),
		c.in.List.DropSQL(),
	}
}

// rootKeyExpr concatenates the level-1 kind prefix with every key domain's
// value, so the same logical node keeps its key across rebuilds.
func (c *compiler) rootKeyExpr() (string, error) {
	if len(c.in.Levels) == 0 {
		return "''", nil
	}
	kind := c.in.Levels[0].Kind
	parts := []string{summary.Quote(kind.Prefix())}
	for _, d := range kind.KeyDomains() {
		expr, ok := c.in.Acc.Expression(d.Name)
		if !ok {
			return "", fmt.Errorf("%w: root key domain %s", ErrUnknownSortColumn, d.Name)
		}
		parts = append(parts, "'/'", "Coalesce("+expr+", '')")
	}
	return strings.Join(parts, " || "), nil
}

func (c *compiler) joins() *JoinSpec {
	b, needs := schema.Books, c.in.Needs
	var j *JoinSpec
	if needs.Bookshelf {
		bbs := schema.BookBookshelf
		j = From(schema.Bookshelves).
			Join(bbs, bbs.Dot("shelf")+" = "+schema.Bookshelves.Dot("_id")).
			Join(b, b.Dot("_id")+" = "+bbs.Dot("book"))
	} else {
		j = From(b)
	}
	if needs.Loan {
		j.LeftJoin(schema.Loans, schema.Loans.Dot("book")+" = "+b.Dot("_id"))
	}

	ba := schema.BookAuthor
	on := []string{ba.Dot("book") + " = " + b.Dot("_id")}
	if !needs.AllAuthors {
		on = append(on, ba.Dot("author_position")+" = 1")
	}
	j.Join(ba, on...).Join(schema.Authors, schema.Authors.Dot("_id")+" = "+ba.Dot("author"))

	bs := schema.BookSeries
	on = []string{bs.Dot("book") + " = " + b.Dot("_id")}
	if !needs.AllSeries {
		on = append(on, bs.Dot("series_position")+" = 1")
	}
	j.LeftJoin(bs, on...).LeftJoin(schema.Series, schema.Series.Dot("_id")+" = "+bs.Dot("series"))
	return j
}

func (c *compiler) destColumns() []string {
	names := make([]string, 0, len(c.cols)+1)
	for _, col := range c.cols {
		names = append(names, col.Domain.Name)
	}
	return append(names, schema.RootKey.Name)
}

func (c *compiler) selectSQL() string {
	exprs := make([]string, 0, len(c.cols)+1)
	for _, col := range c.cols {
		exprs = append(exprs, col.Expr+" AS "+col.Domain.Name)
	}
	exprs = append(exprs, c.rootKey+" AS "+schema.RootKey.Name)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(c.joins().String())
	if where := filter.Where(c.in.Filters...); where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String()
}

func (c *compiler) baseInsert() string {
	dest := strings.Join(c.destColumns(), ", ")
	switch c.in.Strategy {
	case BottomUp:
		return fmt.Sprintf("INSERT INTO %s (%s) %s", c.in.List.Name, dest, c.selectSQL())
	case FlatTriggers:
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) ORDER BY %s",
			c.view, dest, dest, c.selectSQL(), c.sort.OrderBy(""))
	default:
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) ORDER BY %s",
			c.in.List.Name, dest, dest, c.selectSQL(), c.sort.OrderBy(""))
	}
}

// createCurr holds the sort values of the last row that emitted headers.
func (c *compiler) createCurr() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s)", c.curr, qualified("", c.sort.Domains()))
}

func (c *compiler) createView() string {
	return fmt.Sprintf("CREATE TEMP VIEW %s AS SELECT * FROM %s", c.view, c.in.List.Name)
}

// changed is true when the row named by alias differs from curr on any sorted
// domain of ds.
func (c *compiler) changed(ds []*schema.Domain, alias string) string {
	var conds []string
	for _, d := range ds {
		if !c.isSorted(d) {
			continue
		}
		cond := fmt.Sprintf("Coalesce(l.%s, '') = Coalesce(%s.%s, '')", d.Name, alias, d.Name)
		if d.IsText() {
			cond += " COLLATE " + c.sort.collation
		}
		conds = append(conds, cond)
	}
	if len(conds) == 0 {
		conds = []string{"1"}
	}
	return fmt.Sprintf("NOT EXISTS(SELECT 1 FROM %s l WHERE %s)", c.curr, strings.Join(conds, " AND "))
}

func (c *compiler) isSorted(d *schema.Domain) bool {
	for _, s := range c.sort.Domains() {
		if s.Name == d.Name {
			return true
		}
	}
	return false
}

func headerColumns(ds []*schema.Domain) string {
	return "level, kind, root_key, " + qualified("", ds)
}

// nestedTriggers emits, for each level from the innermost out, a trigger that
// inserts that level's header before a row one level deeper whenever the
// level's key changed. The header insert cascades into the next trigger out.
func (c *compiler) nestedTriggers() []string {
	list := c.in.List.Name
	var out []string
	for i := len(c.in.Levels) - 1; i >= 0; i-- {
		lvl := c.in.Levels[i]
		level := i + 1
		out = append(out, fmt.Sprintf(
			"CREATE TEMP TRIGGER %s_hdr_%d BEFORE INSERT ON %s FOR EACH ROW WHEN new.level = %d AND %s"+
				" BEGIN INSERT INTO %s (%s) VALUES (%d, %d, new.root_key, %s); END",
			list, level, list, level+1, c.changed(lvl.Domains, "new"),
			list, headerColumns(lvl.Domains), level, int(lvl.Kind), qualified("new.", lvl.Domains)))
	}
	if n := len(c.in.Levels); n > 0 {
		out = append(out, fmt.Sprintf(
			"CREATE TEMP TRIGGER %s_curr_tg AFTER INSERT ON %s FOR EACH ROW WHEN new.level = %d"+
				" BEGIN DELETE FROM %s; INSERT INTO %s VALUES (%s); END",
			list, list, n, c.curr, c.curr, qualified("new.", c.sort.Domains())))
	}
	return out
}

// flatTrigger emits one INSTEAD OF trigger that writes the missing headers
// outermost first, then the row itself, then remembers the row's sort values.
func (c *compiler) flatTrigger() string {
	list := c.in.List.Name
	var body []string
	for i, lvl := range c.in.Levels {
		body = append(body, fmt.Sprintf("INSERT INTO %s (%s) SELECT %d, %d, new.root_key, %s WHERE %s;",
			list, headerColumns(lvl.Domains), i+1, int(lvl.Kind), qualified("new.", lvl.Domains),
			c.changed(lvl.Domains, "new")))
	}
	var all []*schema.Domain
	for _, d := range c.in.List.Domains() {
		if d.Name != schema.ID.Name {
			all = append(all, d)
		}
	}
	body = append(body,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);", list, qualified("", all), qualified("new.", all)),
		fmt.Sprintf("DELETE FROM %s;", c.curr),
		fmt.Sprintf("INSERT INTO %s VALUES (%s);", c.curr, qualified("new.", c.sort.Domains())))
	return fmt.Sprintf("CREATE TEMP TRIGGER %s_view_tg INSTEAD OF INSERT ON %s FOR EACH ROW BEGIN %s END",
		list, c.view, strings.Join(body, " "))
}

// groupByPasses builds headers bottom-up: each level aggregates the rows one
// level deeper.
func (c *compiler) groupByPasses() []string {
	list := c.in.List.Name
	var out []string
	for i := len(c.in.Levels) - 1; i >= 0; i-- {
		lvl := c.in.Levels[i]
		level := i + 1
		groupBy := make([]string, 0, len(lvl.Domains)+1)
		for _, d := range lvl.Domains {
			if d.IsText() {
				groupBy = append(groupBy, d.Name+" COLLATE "+c.sort.collation)
			} else {
				groupBy = append(groupBy, d.Name)
			}
		}
		groupBy = append(groupBy, "root_key COLLATE "+c.sort.collation)
		cols := qualified("", lvl.Domains)
		out = append(out, fmt.Sprintf(
			"INSERT INTO %s (level, kind, %s, root_key) SELECT %d, %d, %s, root_key FROM %s WHERE level = %d GROUP BY %s",
			list, cols, level, int(lvl.Kind), cols, list, level+1, strings.Join(groupBy, ", ")))
	}
	return out
}

// suppress drops innermost headers whose kind has no value. Their leaves sort
// first among their siblings, so they read as direct children of the parent.
func (c *compiler) suppress() []string {
	n := len(c.in.Levels)
	if n < 2 {
		return nil
	}
	d := c.in.Levels[n-1].Kind.NullHeaderDomain()
	if d == nil {
		return nil
	}
	return []string{fmt.Sprintf("DELETE FROM %s WHERE level = %d AND %s IS NULL", c.in.List.Name, n, d.Name)}
}

type navState int

const (
	statePreserved navState = iota
	stateExpanded
	stateCollapsed
)

func (c *compiler) navInsert(top group.Kind, order string, st navState) string {
	list, nav, ns := c.in.List, c.in.Nav, schema.NodeSettings
	level := list.Dot("level")
	head := fmt.Sprintf("INSERT INTO %s (real_row_id, level, root_key, visible, expanded) SELECT %s, %s, %s, ",
		nav.Name, list.Dot("_id"), level, list.Dot("root_key"))
	switch st {
	case stateExpanded:
		return head + fmt.Sprintf("1, 1 FROM %s ORDER BY %s", list.Ref(), order)
	case stateCollapsed:
		return head + fmt.Sprintf("CASE WHEN %s = 1 THEN 1 ELSE 0 END, 0 FROM %s ORDER BY %s", level, list.Ref(), order)
	default:
		set := ns.Dot("root_key") + " IS NULL"
		return head + fmt.Sprintf("CASE WHEN %s = 1 THEN 1 WHEN %s THEN 0 ELSE 1 END, CASE WHEN %s THEN 0 ELSE 1 END"+
			" FROM %s LEFT OUTER JOIN %s ON %s = %s AND %s = %d ORDER BY %s",
			level, set, set, list.Ref(), ns.Ref(), ns.Dot("root_key"), list.Dot("root_key"), ns.Dot("kind"), int(top), order)
	}
}
