// Package group defines the kinds of grouping a booklist can be organised by
// and what each kind contributes to the list table.
package group

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/booklist/internal/schema"
)

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown group kind")

// Kind identifies a grouping. The numeric values are persisted with node
// state and must not be renumbered.
type Kind int

const (
	KindBook Kind = iota
	KindAuthor
	KindSeries
	KindGenre
	KindPublisher
	KindReadStatus
	KindLoaned
	KindDatePublishedYear
	KindDatePublishedMonth
	KindTitleLetter
	KindDateAddedYear
	KindDateAddedMonth
	KindDateAddedDay
	KindFormat
	KindDateReadYear
	KindDateReadMonth
	KindDateReadDay
	KindLocation
	KindLanguage
	KindDateLastUpdateYear
	KindDateLastUpdateMonth
	KindDateLastUpdateDay
	KindRating
	KindBookshelf
	KindDateAcquiredYear
	KindDateAcquiredMonth
	KindDateAcquiredDay
	KindDateFirstPublicationYear
	KindDateFirstPublicationMonth

	kindCount
)

type kindInfo struct {
	name string
	// prefix starts the root key of a level-1 node of this kind.
	prefix string
	// key holds the domains whose values identify one node of this kind.
	key []*schema.Domain
	// nullHeader, when set, names a domain whose NULL value suppresses the
	// innermost header row of this kind.
	nullHeader *schema.Domain
	declare    func(*declarer)
}

var kinds = [kindCount]kindInfo{
	KindBook:                      {name: "book", declare: declareBook},
	KindAuthor:                    {name: "author", prefix: "a", key: keys(schema.AuthorID), declare: declareAuthor},
	KindSeries:                    {name: "series", prefix: "s", key: keys(schema.SeriesID), nullHeader: schema.SeriesID, declare: declareSeries},
	KindGenre:                     {name: "genre", prefix: "g", key: keys(schema.Genre), declare: column(schema.Genre, "genre")},
	KindPublisher:                 {name: "publisher", prefix: "p", key: keys(schema.Publisher), declare: column(schema.Publisher, "publisher")},
	KindReadStatus:                {name: "read_status", prefix: "r", key: keys(schema.ReadStatus), declare: declareReadStatus},
	KindLoaned:                    {name: "loaned", prefix: "l", key: keys(schema.LoanedTo), declare: declareLoaned},
	KindDatePublishedYear:         {name: "date_published_year", prefix: "yrp", key: keys(schema.PublishedYear), declare: year(schema.PublishedYear, "date_published", false, false)},
	KindDatePublishedMonth:        {name: "date_published_month", prefix: "mnp", key: keys(schema.PublishedMonth), declare: month(schema.PublishedMonth, "date_published", false, false)},
	KindTitleLetter:               {name: "title_letter", prefix: "t", key: keys(schema.TitleLetter), declare: declareTitleLetter},
	KindDateAddedYear:             {name: "date_added_year", prefix: "yra", key: keys(schema.AddedYear), declare: year(schema.AddedYear, "date_added", true, true)},
	KindDateAddedMonth:            {name: "date_added_month", prefix: "mna", key: keys(schema.AddedMonth), declare: month(schema.AddedMonth, "date_added", true, true)},
	KindDateAddedDay:              {name: "date_added_day", prefix: "dya", key: keys(schema.AddedDay), declare: day(schema.AddedDay, "date_added", true, true)},
	KindFormat:                    {name: "format", prefix: "fmt", key: keys(schema.Format), declare: column(schema.Format, "format")},
	KindDateReadYear:              {name: "date_read_year", prefix: "yrr", key: keys(schema.ReadYear), declare: year(schema.ReadYear, "read_end", false, false)},
	KindDateReadMonth:             {name: "date_read_month", prefix: "mnr", key: keys(schema.ReadMonth), declare: month(schema.ReadMonth, "read_end", false, false)},
	KindDateReadDay:               {name: "date_read_day", prefix: "dyr", key: keys(schema.ReadDay), declare: day(schema.ReadDay, "read_end", false, false)},
	KindLocation:                  {name: "location", prefix: "loc", key: keys(schema.Location), declare: column(schema.Location, "location")},
	KindLanguage:                  {name: "language", prefix: "lang", key: keys(schema.Language), declare: column(schema.Language, "language")},
	KindDateLastUpdateYear:        {name: "date_last_update_year", prefix: "yru", key: keys(schema.UpdateYear), declare: lastUpdate(year(schema.UpdateYear, "last_update_date", true, true))},
	KindDateLastUpdateMonth:       {name: "date_last_update_month", prefix: "mnu", key: keys(schema.UpdateMonth), declare: lastUpdate(month(schema.UpdateMonth, "last_update_date", true, true))},
	KindDateLastUpdateDay:         {name: "date_last_update_day", prefix: "dyu", key: keys(schema.UpdateDay), declare: lastUpdate(day(schema.UpdateDay, "last_update_date", true, true))},
	KindRating:                    {name: "rating", prefix: "rat", key: keys(schema.Rating), declare: declareRating},
	KindBookshelf:                 {name: "bookshelf", prefix: "shelf", key: keys(schema.Bookshelf), declare: declareBookshelf},
	KindDateAcquiredYear:          {name: "date_acquired_year", prefix: "yrac", key: keys(schema.AcquiredYear), declare: year(schema.AcquiredYear, "date_acquired", true, false)},
	KindDateAcquiredMonth:         {name: "date_acquired_month", prefix: "mnac", key: keys(schema.AcquiredMonth), declare: month(schema.AcquiredMonth, "date_acquired", true, false)},
	KindDateAcquiredDay:           {name: "date_acquired_day", prefix: "dyac", key: keys(schema.AcquiredDay), declare: day(schema.AcquiredDay, "date_acquired", true, false)},
	KindDateFirstPublicationYear:  {name: "date_first_publication_year", prefix: "yrfp", key: keys(schema.FirstPublicationYear), declare: year(schema.FirstPublicationYear, "first_publication", false, false)},
	KindDateFirstPublicationMonth: {name: "date_first_publication_month", prefix: "mnfp", key: keys(schema.FirstPublicationMonth), declare: month(schema.FirstPublicationMonth, "first_publication", false, false)},
}

func keys(ds ...*schema.Domain) []*schema.Domain { return ds }

func init() {
	for k := range kinds {
		if kinds[k].declare == nil || kinds[k].name == "" {
			panic(fmt.Sprintf("group: kind %d has no handler", k))
		}
	}
}

// Kinds returns every kind in id order.
func Kinds() []Kind {
	out := make([]Kind, kindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kinds[k].name
}

// Prefix is the literal that starts root keys of level-1 nodes of this kind.
func (k Kind) Prefix() string {
	return kinds[k].prefix
}

// KeyDomains are the domains whose values identify a node of this kind.
func (k Kind) KeyDomains() []*schema.Domain {
	return kinds[k].key
}

// NullHeaderDomain returns the domain whose NULL value suppresses an innermost
// header of this kind, or nil.
func (k Kind) NullHeaderDomain() *schema.Domain {
	return kinds[k].nullHeader
}

// ParseKind resolves a configuration name such as "author" or "date_added_year".
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	for k := range kinds {
		if kinds[k].name == n {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}
