package schema

import (
	"fmt"
	"strings"
)

// Table is a table definition: a name, the alias used in joins, and its domains.
type Table struct {
	Name  string
	Alias string
	// Temp tables live in the connection-private temp schema.
	Temp    bool
	domains []*Domain
	byName  map[string]*Domain
}

// NewTable returns a table holding ds in declaration order.
func NewTable(name, alias string, ds ...*Domain) *Table {
	t := &Table{Name: name, Alias: alias, byName: make(map[string]*Domain)}
	for _, d := range ds {
		t.AddDomain(d)
	}
	return t
}

// AddDomain appends d unless a domain of the same name is already present.
// It reports whether the domain was added.
func (t *Table) AddDomain(d *Domain) bool {
	if _, ok := t.byName[d.Name]; ok {
		return false
	}
	t.byName[d.Name] = d
	t.domains = append(t.domains, d)
	return true
}

// Domains returns the table's domains in declaration order.
func (t *Table) Domains() []*Domain {
	return t.domains
}

// Domain looks up a domain by column name.
func (t *Table) Domain(name string) (*Domain, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// Has reports whether the table carries d.
func (t *Table) Has(d *Domain) bool {
	_, ok := t.byName[d.Name]
	return ok
}

// Dot qualifies col with the table alias.
func (t *Table) Dot(col string) string {
	return t.Alias + "." + col
}

// Ref renders "name alias" for use in a FROM clause.
func (t *Table) Ref() string {
	return t.Name + " " + t.Alias
}

// CreateSQL renders the CREATE TABLE statement.
func (t *Table) CreateSQL() string {
	defs := make([]string, len(t.domains))
	for i, d := range t.domains {
		defs[i] = d.Definition()
	}
	temp := ""
	if t.Temp {
		temp = "TEMP "
	}
	return fmt.Sprintf("CREATE %sTABLE %s (%s)", temp, t.Name, strings.Join(defs, ", "))
}

// CreateIfMissingSQL is CreateSQL with IF NOT EXISTS.
func (t *Table) CreateIfMissingSQL() string {
	return strings.Replace(t.CreateSQL(), "TABLE ", "TABLE IF NOT EXISTS ", 1)
}

// DropSQL renders DROP TABLE IF EXISTS.
func (t *Table) DropSQL() string {
	return "DROP TABLE IF EXISTS " + t.Name
}

// IndexSQL renders a CREATE INDEX over the given column expressions.
func (t *Table) IndexSQL(suffix string, unique bool, cols ...string) string {
	u := ""
	if unique {
		u = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s_%s ON %s (%s)", u, t.Name, suffix, t.Name, strings.Join(cols, ", "))
}
