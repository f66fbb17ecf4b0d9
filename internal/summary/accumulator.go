// Package summary accumulates the column declarations that make up a booklist:
// the list table's domains, the projected source expressions, the grouped
// domains of each level and the ordered sort keys.
package summary

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/booklist/internal/schema"
)

// ErrConflictingDomain is returned when one domain is declared with two
// different source expressions.
var ErrConflictingDomain = errors.New("conflicting domain declaration")

// Flags qualify a declaration.
type Flags uint8

const (
	FlagNone    Flags = 0
	FlagSorted  Flags = 1 << 0
	FlagGrouped Flags = 1 << 1
	// FlagDescending only has effect together with FlagSorted.
	FlagDescending Flags = 1 << 3
)

// Column is a projected domain and the SQL expression that produces it.
type Column struct {
	Domain *schema.Domain
	Expr   string
}

// SortKey is one entry of the ordered sort list.
type SortKey struct {
	Domain     *schema.Domain
	Descending bool
	// Grouped is set when the domain is also part of a level's key.
	Grouped bool
}

// Accumulator collects declarations in order. It is not safe for concurrent use.
type Accumulator struct {
	table     *schema.Table
	projected []Column
	exprs     map[string]string
	grouped   []*schema.Domain
	isGrouped map[string]bool
	sorted    []SortKey
	isSorted  map[string]bool
}

// New returns an accumulator that adds every declared domain to table.
func New(table *schema.Table) *Accumulator {
	return &Accumulator{
		table:     table,
		exprs:     make(map[string]string),
		isGrouped: make(map[string]bool),
		isSorted:  make(map[string]bool),
	}
}

// Declare adds d to the list table. An empty expr declares a column with no
// per-row source: it is tracked for sorting and grouping but not projected.
//
// Re-declaring a domain with the same expression (compared case-insensitively)
// or with an empty one changes nothing but the flags. A different non-empty
// expression is an ErrConflictingDomain.
func (a *Accumulator) Declare(d *schema.Domain, expr string, flags Flags) error {
	expr = strings.TrimSpace(expr)
	a.table.AddDomain(d)

	if expr != "" {
		prev, ok := a.exprs[d.Name]
		switch {
		case !ok:
			a.exprs[d.Name] = expr
			a.projected = append(a.projected, Column{Domain: d, Expr: expr})
		case !strings.EqualFold(prev, expr):
			return fmt.Errorf("%w: %s is %q, redeclared as %q", ErrConflictingDomain, d.Name, prev, expr)
		}
	}

	if flags&FlagGrouped != 0 && !a.isGrouped[d.Name] {
		a.isGrouped[d.Name] = true
		a.grouped = append(a.grouped, d)
	}
	if flags&FlagSorted != 0 && !a.isSorted[d.Name] {
		a.isSorted[d.Name] = true
		a.sorted = append(a.sorted, SortKey{Domain: d, Descending: flags&FlagDescending != 0})
	}
	return nil
}

// Expression returns the source expression of a projected domain.
func (a *Accumulator) Expression(name string) (string, bool) {
	e, ok := a.exprs[name]
	return e, ok
}

// Projected reports whether the domain has a source expression.
func (a *Accumulator) Projected(name string) bool {
	_, ok := a.exprs[name]
	return ok
}

// Projection returns the projected columns in declaration order.
func (a *Accumulator) Projection() []Column {
	return append([]Column(nil), a.projected...)
}

// SortKeys returns the sort list in declaration order.
func (a *Accumulator) SortKeys() []SortKey {
	out := make([]SortKey, len(a.sorted))
	for i, k := range a.sorted {
		k.Grouped = a.isGrouped[k.Domain.Name]
		out[i] = k
	}
	return out
}

// CloneGroups snapshots the grouped domains declared so far. Taken after each
// group level is declared, it yields that level's cumulative key.
func (a *Accumulator) CloneGroups() []*schema.Domain {
	return append([]*schema.Domain(nil), a.grouped...)
}

// Table is the list table being shaped.
func (a *Accumulator) Table() *schema.Table {
	return a.table
}
