// Package filter holds WHERE-clause terms for booklist builds.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/agentic-research/booklist/internal/schema"
)

// Filter is a single boolean SQL term. Inactive filters are skipped.
type Filter interface {
	Expression() string
	Active() bool
}

// Expr is a literal SQL criterion; active when non-blank.
type Expr string

func (e Expr) Expression() string { return "(" + string(e) + ")" }
func (e Expr) Active() bool       { return strings.TrimSpace(string(e)) != "" }

// Wildcard matches column against value with LIKE, surrounding it with '%'.
type Wildcard struct {
	Column string
	Value  string
}

func (w Wildcard) Expression() string {
	return fmt.Sprintf("(%s LIKE %s)", w.Column, quote("%"+escapeLike(w.Value)+"%")+` ESCAPE '\'`)
}

func (w Wildcard) Active() bool { return strings.TrimSpace(w.Value) != "" }

// TriState filters an integer flag column. A nil Want is inactive.
type TriState struct {
	Column string
	Want   *bool
}

func (f TriState) Expression() string {
	if f.Want != nil && *f.Want {
		return "(" + f.Column + " = 1)"
	}
	return "(Coalesce(" + f.Column + ", 0) = 0)"
}

func (f TriState) Active() bool { return f.Want != nil }

// Exists wraps a correlated subquery.
type Exists struct {
	Query string
}

func (e Exists) Expression() string { return "EXISTS(" + e.Query + ")" }
func (e Exists) Active() bool       { return e.Query != "" }

// LoanedTo matches books currently lent to person.
func LoanedTo(person string) Filter {
	if strings.TrimSpace(person) == "" {
		return Exists{}
	}
	l := schema.Loans
	return Exists{Query: fmt.Sprintf("SELECT NULL FROM %s WHERE %s = %s AND %s = %s",
		l.Ref(), l.Dot("book"), schema.Books.Dot("_id"), l.Dot("loaned_to"), quote(person))}
}

// AuthorName matches books having an author whose name contains name.
func AuthorName(name string) Filter {
	if strings.TrimSpace(name) == "" {
		return Exists{}
	}
	pattern := quote("%"+escapeLike(name)+"%") + ` ESCAPE '\'`
	return Exists{Query: fmt.Sprintf("SELECT NULL FROM authors a2 JOIN book_author ba2 ON ba2.author = a2._id"+
		" WHERE ba2.book = %s AND (a2.family_name LIKE %s OR a2.given_names LIKE %s"+
		" OR (a2.given_names || ' ' || a2.family_name) LIKE %s)",
		schema.Books.Dot("_id"), pattern, pattern, pattern)}
}

// Bookshelf restricts to one shelf. When the shelf is itself a group level the
// shelf join already fans out, so membership is tested with a subquery and the
// book keeps appearing under every shelf it is on.
func Bookshelf(id int64, grouped bool) Filter {
	if !grouped {
		return Expr(schema.Bookshelves.Dot("_id") + " = " + strconv.FormatInt(id, 10))
	}
	return Exists{Query: fmt.Sprintf("SELECT NULL FROM book_bookshelf bbs2 WHERE bbs2.book = %s AND bbs2.shelf = %d",
		schema.Books.Dot("_id"), id)}
}

// Text matches books whose full-text entry matches every token of query.
// The caller passes an already case-folded query.
func Text(query string) Filter {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return Exists{}
	}
	for i, tok := range tokens {
		tokens[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
	}
	match := quote(strings.Join(tokens, " "))
	return Exists{Query: fmt.Sprintf("SELECT NULL FROM %s WHERE %s.rowid = %s AND %s MATCH %s",
		schema.FTSTable, schema.FTSTable, schema.Books.Dot("_id"), schema.FTSTable, match)}
}

// Loaned is a tri-state on whether a book is currently lent out.
type Loaned struct {
	Want *bool
}

func (f Loaned) Expression() string {
	q := fmt.Sprintf("SELECT NULL FROM %s l2 WHERE l2.book = %s", schema.Loans.Name, schema.Books.Dot("_id"))
	if f.Want != nil && *f.Want {
		return "EXISTS(" + q + ")"
	}
	return "NOT EXISTS(" + q + ")"
}

func (f Loaned) Active() bool { return f.Want != nil }

// InTable restricts book ids to those listed in a single-column table.
type InTable struct {
	Table  string
	Column string
}

func (f InTable) Expression() string {
	return fmt.Sprintf("(%s IN (SELECT %s FROM %s))", schema.Books.Dot("_id"), f.Column, f.Table)
}

func (f InTable) Active() bool { return f.Table != "" }

// Where renders the active filters as one AND-ed clause, or "" when none.
func Where(filters ...Filter) string {
	var terms []string
	for _, f := range filters {
		if f == nil || !f.Active() {
			continue
		}
		terms = append(terms, f.Expression())
	}
	return strings.Join(terms, " AND ")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
