package group

import (
	"fmt"

	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/summary"
)

// Level is one tier of the display hierarchy. It is immutable during a build.
type Level struct {
	Kind Kind
	// ShowAll lists a book under every one of its authors or series instead
	// of only the primary one. Only meaningful for author and series levels.
	ShowAll bool
	// GivenNameFirst formats author headers as "Given Family".
	GivenNameFirst bool
}

// Env holds the settings every handler may consult.
type Env struct {
	Dates summary.DateParts
	// SortAuthorByGiven sorts authors by given name instead of family name.
	SortAuthorByGiven bool
	// Descending allows FlagDescending. Strategies that cannot honour a
	// descending header sort clear it.
	Descending bool
}

// Needs collects the optional joins required by the declared levels.
type Needs struct {
	Bookshelf bool
	Loan      bool
	// AllAuthors and AllSeries drop the primary-position join restriction.
	AllAuthors bool
	AllSeries  bool
}

type declarer struct {
	acc      *summary.Accumulator
	level    Level
	env      Env
	needs    *Needs
	declared []*schema.Domain
	err      error
}

func (dc *declarer) add(dom *schema.Domain, expr string, flags summary.Flags) {
	if dc.err != nil {
		return
	}
	if !dc.env.Descending {
		flags &^= summary.FlagDescending
	}
	if err := dc.acc.Declare(dom, expr, flags); err != nil {
		dc.err = err
		return
	}
	dc.declared = append(dc.declared, dom)
}

// Declare adds the domains of level l to acc and records the joins it needs.
// It returns the domains declared, in order.
func Declare(acc *summary.Accumulator, l Level, env Env, needs *Needs) ([]*schema.Domain, error) {
	if !l.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(l.Kind))
	}
	dc := &declarer{acc: acc, level: l, env: env, needs: needs}
	kinds[l.Kind].declare(dc)
	if dc.err != nil {
		return nil, fmt.Errorf("declare %s: %w", l.Kind, dc.err)
	}
	return dc.declared, nil
}

const gs = summary.FlagGrouped | summary.FlagSorted

func declareBook(dc *declarer) {
	// Leaf columns are declared by the builder itself.
}

func declareAuthor(dc *declarer) {
	if dc.level.ShowAll {
		dc.needs.AllAuthors = true
	}
	sortExpr := familyFirst()
	if dc.env.SortAuthorByGiven {
		sortExpr = givenFirst()
	}
	display := familyFirst()
	if dc.level.GivenNameFirst {
		display = givenFirst()
	}
	dc.add(schema.AuthorSort, sortExpr, gs)
	dc.add(schema.AuthorFormatted, display, summary.FlagGrouped)
	dc.add(schema.AuthorID, schema.BookAuthor.Dot("author"), summary.FlagGrouped)
	dc.add(schema.AuthorComplete, schema.Authors.Dot("author_complete"), summary.FlagGrouped)
}

func givenFirst() string {
	a := schema.Authors
	return fmt.Sprintf("CASE WHEN %s = '' THEN %s ELSE %s || ' ' || %s END",
		a.Dot("given_names"), a.Dot("family_name"), a.Dot("given_names"), a.Dot("family_name"))
}

func familyFirst() string {
	a := schema.Authors
	return fmt.Sprintf("CASE WHEN %s = '' THEN %s ELSE %s || ', ' || %s END",
		a.Dot("given_names"), a.Dot("family_name"), a.Dot("family_name"), a.Dot("given_names"))
}

func declareSeries(dc *declarer) {
	if dc.level.ShowAll {
		dc.needs.AllSeries = true
	}
	bs := schema.BookSeries
	dc.add(schema.SeriesName, schema.Series.Dot("series_name"), gs)
	dc.add(schema.SeriesID, bs.Dot("series"), summary.FlagGrouped)
	dc.add(schema.SeriesPosition, bs.Dot("series_position"), summary.FlagNone)
	dc.add(schema.SeriesComplete, schema.Series.Dot("series_complete"), summary.FlagGrouped)
	dc.add(schema.SeriesNumFloat, "CAST("+bs.Dot("series_num")+" AS REAL)", summary.FlagSorted)
	dc.add(schema.SeriesNum, bs.Dot("series_num"), summary.FlagSorted)
	dc.add(schema.PrimarySeriesCount,
		"CASE WHEN Coalesce("+bs.Dot("series_position")+", 1) == 1 THEN 1 ELSE 0 END", summary.FlagNone)
}

func declareLoaned(dc *declarer) {
	dc.needs.Loan = true
	l := schema.Loans.Dot("loaned_to")
	dc.add(schema.LoanedToSort, "CASE WHEN "+l+" IS NULL THEN 1 ELSE 0 END", gs)
	dc.add(schema.LoanedTo, l, gs)
}

func declareBookshelf(dc *declarer) {
	dc.needs.Bookshelf = true
	dc.add(schema.Bookshelf, schema.Bookshelves.Dot("bookshelf"), gs)
}

func declareReadStatus(dc *declarer) {
	r := schema.Books.Dot("read")
	dc.add(schema.ReadStatus, "CASE WHEN "+r+" = 1 THEN 'Read' ELSE 'Unread' END", gs)
	dc.add(schema.Read, r, summary.FlagNone)
}

func declareTitleLetter(dc *declarer) {
	dc.add(schema.TitleLetter, "upper(substr("+schema.Books.Dot("title")+", 1, 1))", gs)
}

func declareRating(dc *declarer) {
	dc.add(schema.Rating, "CAST("+schema.Books.Dot("rating")+" AS INTEGER)", gs|summary.FlagDescending)
}

// column declares a plain books column as a grouped, sorted domain.
func column(dom *schema.Domain, col string) func(*declarer) {
	return func(dc *declarer) {
		dc.add(dom, schema.Books.Dot(col), gs)
	}
}

func dateFlags(desc bool) summary.Flags {
	if desc {
		return gs | summary.FlagDescending
	}
	return gs
}

func year(dom *schema.Domain, col string, local, desc bool) func(*declarer) {
	return func(dc *declarer) {
		dc.add(dom, dc.env.Dates.Year(schema.Books.Dot(col), local), dateFlags(desc))
	}
}

func month(dom *schema.Domain, col string, local, desc bool) func(*declarer) {
	return func(dc *declarer) {
		dc.add(dom, dc.env.Dates.Month(schema.Books.Dot(col), local), dateFlags(desc))
	}
}

func day(dom *schema.Domain, col string, local, desc bool) func(*declarer) {
	return func(dc *declarer) {
		dc.add(dom, dc.env.Dates.Day(schema.Books.Dot(col), local), dateFlags(desc))
	}
}

// lastUpdate also sorts by the full timestamp so books inside a period are
// newest first.
func lastUpdate(part func(*declarer)) func(*declarer) {
	return func(dc *declarer) {
		part(dc)
		dc.add(schema.LastUpdateDate, schema.Books.Dot("last_update_date"), summary.FlagSorted|summary.FlagDescending)
	}
}
