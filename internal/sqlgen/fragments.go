package sqlgen

import (
	"strings"

	"github.com/agentic-research/booklist/internal/schema"
)

type joinClause struct {
	outer bool
	table *schema.Table
	on    []string
}

// JoinSpec is a FROM clause assembled from tables and join conditions.
type JoinSpec struct {
	from  *schema.Table
	joins []joinClause
}

// From starts a join at t.
func From(t *schema.Table) *JoinSpec {
	return &JoinSpec{from: t}
}

// Join adds an inner join on the AND of the conditions.
func (j *JoinSpec) Join(t *schema.Table, on ...string) *JoinSpec {
	j.joins = append(j.joins, joinClause{table: t, on: on})
	return j
}

// LeftJoin adds a left outer join.
func (j *JoinSpec) LeftJoin(t *schema.Table, on ...string) *JoinSpec {
	j.joins = append(j.joins, joinClause{outer: true, table: t, on: on})
	return j
}

// Tables returns the joined tables in order, starting with the FROM table.
func (j *JoinSpec) Tables() []*schema.Table {
	out := []*schema.Table{j.from}
	for _, c := range j.joins {
		out = append(out, c.table)
	}
	return out
}

func (j *JoinSpec) String() string {
	var sb strings.Builder
	sb.WriteString(j.from.Ref())
	for _, c := range j.joins {
		if c.outer {
			sb.WriteString(" LEFT OUTER JOIN ")
		} else {
			sb.WriteString(" JOIN ")
		}
		sb.WriteString(c.table.Ref())
		if len(c.on) > 0 {
			sb.WriteString(" ON ")
			sb.WriteString(strings.Join(c.on, " AND "))
		}
	}
	return sb.String()
}

type sortKey struct {
	domain *schema.Domain
	desc   bool
}

// SortList is the ordered list of sort keys and how text is collated.
type SortList struct {
	keys      []sortKey
	collation string
	// fold wraps text keys in lower() when the collation is case sensitive.
	fold bool
}

// Add appends a key unless the domain is already present.
func (s *SortList) Add(d *schema.Domain, desc bool) {
	for _, k := range s.keys {
		if k.domain.Name == d.Name {
			return
		}
	}
	s.keys = append(s.keys, sortKey{domain: d, desc: desc})
}

// Domains returns the key domains in order.
func (s *SortList) Domains() []*schema.Domain {
	out := make([]*schema.Domain, len(s.keys))
	for i, k := range s.keys {
		out[i] = k.domain
	}
	return out
}

// OrderBy renders the keys as ORDER BY terms, each column prefixed by qual.
func (s *SortList) OrderBy(qual string) string {
	return s.render(qual, s.fold)
}

// IndexColumns renders the keys as index columns. Indexes cannot hold
// lower(), so folding is never applied.
func (s *SortList) IndexColumns() string {
	return s.render("", false)
}

func (s *SortList) render(qual string, fold bool) string {
	terms := make([]string, len(s.keys))
	for i, k := range s.keys {
		col := qual + k.domain.Name
		if k.domain.IsText() {
			if fold && !k.domain.PreNormalized {
				col = "lower(" + col + ")"
			}
			col += " COLLATE " + s.collation
		}
		if k.desc {
			col += " DESC"
		}
		terms[i] = col
	}
	return strings.Join(terms, ", ")
}

func qualified(qual string, ds []*schema.Domain) string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = qual + d.Name
	}
	return strings.Join(out, ", ")
}
