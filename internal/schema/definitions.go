package schema

import "strconv"

// Domains carried by the materialized list and navigation tables.
var (
	ID                 = &Domain{Name: "_id", Type: TypeInteger, PrimaryKey: true}
	Level              = &Domain{Name: "level", Type: TypeInteger, NotNull: true}
	Kind               = &Domain{Name: "kind", Type: TypeInteger, NotNull: true}
	RootKey            = &Domain{Name: "root_key", Type: TypeText}
	BookCount          = &Domain{Name: "book_count", Type: TypeInteger}
	PrimarySeriesCount = &Domain{Name: "primary_series_count", Type: TypeInteger}
	RealRowID          = &Domain{Name: "real_row_id", Type: TypeInteger}
	Visible            = &Domain{Name: "visible", Type: TypeInteger, Default: "0"}
	Expanded           = &Domain{Name: "expanded", Type: TypeInteger, Default: "0"}
	Selected           = &Domain{Name: "selected", Type: TypeInteger}
	AbsolutePosition   = &Domain{Name: "abs_pos", Type: TypeInteger}

	Book = &Domain{Name: "book", Type: TypeInteger}
	UUID = &Domain{Name: "book_uuid", Type: TypeText}

	Title       = &Domain{Name: "title", Type: TypeText}
	TitleLetter = &Domain{Name: "title_letter", Type: TypeText}

	AuthorSort      = &Domain{Name: "author_sort", Type: TypeText}
	AuthorFormatted = &Domain{Name: "author_formatted", Type: TypeText}
	AuthorID        = &Domain{Name: "author_id", Type: TypeInteger}
	AuthorComplete  = &Domain{Name: "author_complete", Type: TypeInteger}

	SeriesName     = &Domain{Name: "series_name", Type: TypeText}
	SeriesID       = &Domain{Name: "series_id", Type: TypeInteger}
	SeriesPosition = &Domain{Name: "series_position", Type: TypeInteger}
	SeriesComplete = &Domain{Name: "series_complete", Type: TypeInteger}
	SeriesNum      = &Domain{Name: "series_num", Type: TypeText}
	SeriesNumFloat = &Domain{Name: "series_num_float", Type: TypeReal}

	LoanedToSort = &Domain{Name: "loaned_to_sort", Type: TypeInteger}
	LoanedTo     = &Domain{Name: "loaned_to", Type: TypeText}
	Bookshelf    = &Domain{Name: "bookshelf", Type: TypeText}
	ReadStatus   = &Domain{Name: "read_status", Type: TypeText}
	Read         = &Domain{Name: "read", Type: TypeInteger}
	Publisher    = &Domain{Name: "publisher", Type: TypeText}
	Genre        = &Domain{Name: "genre", Type: TypeText}
	Language     = &Domain{Name: "language", Type: TypeText}
	Location     = &Domain{Name: "location", Type: TypeText}
	Format       = &Domain{Name: "format", Type: TypeText}
	Rating       = &Domain{Name: "rating", Type: TypeInteger}

	PublishedYear         = &Domain{Name: "pub_year", Type: TypeText}
	PublishedMonth        = &Domain{Name: "pub_month", Type: TypeText}
	FirstPublicationYear  = &Domain{Name: "first_pub_year", Type: TypeText}
	FirstPublicationMonth = &Domain{Name: "first_pub_month", Type: TypeText}
	ReadYear              = &Domain{Name: "read_year", Type: TypeText}
	ReadMonth             = &Domain{Name: "read_month", Type: TypeText}
	ReadDay               = &Domain{Name: "read_day", Type: TypeText}
	AcquiredYear          = &Domain{Name: "acquired_year", Type: TypeText}
	AcquiredMonth         = &Domain{Name: "acquired_month", Type: TypeText}
	AcquiredDay           = &Domain{Name: "acquired_day", Type: TypeText}
	AddedYear             = &Domain{Name: "added_year", Type: TypeText}
	AddedMonth            = &Domain{Name: "added_month", Type: TypeText}
	AddedDay              = &Domain{Name: "added_day", Type: TypeText}
	UpdateYear            = &Domain{Name: "update_year", Type: TypeText}
	UpdateMonth           = &Domain{Name: "update_month", Type: TypeText}
	UpdateDay             = &Domain{Name: "update_day", Type: TypeText}
	LastUpdateDate        = &Domain{Name: "last_update_date", Type: TypeText}
)

// Source catalogue tables. The list is projected from joins over these.
var (
	Books = NewTable("books", "b",
		ID,
		&Domain{Name: "uuid", Type: TypeText},
		&Domain{Name: "title", Type: TypeText, NotNull: true},
		&Domain{Name: "description", Type: TypeText},
		&Domain{Name: "publisher", Type: TypeText},
		&Domain{Name: "genre", Type: TypeText},
		&Domain{Name: "language", Type: TypeText},
		&Domain{Name: "location", Type: TypeText},
		&Domain{Name: "format", Type: TypeText},
		&Domain{Name: "rating", Type: TypeReal, Default: "0"},
		&Domain{Name: "read", Type: TypeInteger, Default: "0"},
		&Domain{Name: "signed", Type: TypeInteger, Default: "0"},
		&Domain{Name: "read_end", Type: TypeText},
		&Domain{Name: "date_published", Type: TypeText},
		&Domain{Name: "first_publication", Type: TypeText},
		&Domain{Name: "date_acquired", Type: TypeText},
		&Domain{Name: "date_added", Type: TypeText, Default: "current_timestamp"},
		&Domain{Name: "last_update_date", Type: TypeText, Default: "current_timestamp"},
	)
	Authors = NewTable("authors", "a",
		ID,
		&Domain{Name: "family_name", Type: TypeText, NotNull: true},
		&Domain{Name: "given_names", Type: TypeText, NotNull: true, Default: "''"},
		&Domain{Name: "author_complete", Type: TypeInteger, Default: "0"},
	)
	BookAuthor = NewTable("book_author", "ba",
		&Domain{Name: "book", Type: TypeInteger, NotNull: true},
		&Domain{Name: "author", Type: TypeInteger, NotNull: true},
		&Domain{Name: "author_position", Type: TypeInteger, NotNull: true},
	)
	Series = NewTable("series", "s",
		ID,
		&Domain{Name: "series_name", Type: TypeText, NotNull: true},
		&Domain{Name: "series_complete", Type: TypeInteger, Default: "0"},
	)
	BookSeries = NewTable("book_series", "bs",
		&Domain{Name: "book", Type: TypeInteger, NotNull: true},
		&Domain{Name: "series", Type: TypeInteger, NotNull: true},
		&Domain{Name: "series_num", Type: TypeText},
		&Domain{Name: "series_position", Type: TypeInteger, NotNull: true},
	)
	Bookshelves = NewTable("bookshelf", "sh",
		ID,
		&Domain{Name: "bookshelf", Type: TypeText, NotNull: true},
	)
	BookBookshelf = NewTable("book_bookshelf", "bbs",
		&Domain{Name: "book", Type: TypeInteger, NotNull: true},
		&Domain{Name: "shelf", Type: TypeInteger, NotNull: true},
	)
	Loans = NewTable("loan", "l",
		ID,
		&Domain{Name: "book", Type: TypeInteger, NotNull: true},
		&Domain{Name: "loaned_to", Type: TypeText, NotNull: true},
	)
)

// FTSTable is the full-text index over books; its rowid is the book id.
const FTSTable = "books_fts"

// NodeSettings persists which level-1 nodes are expanded, keyed by the level-1
// kind and root key. It survives rebuilds and restarts.
var NodeSettings = NewTable("book_list_node_settings", "blns",
	ID,
	Kind,
	&Domain{Name: "root_key", Type: TypeText, NotNull: true},
)

// Catalogue lists the source tables in creation order.
func Catalogue() []*Table {
	return []*Table{Books, Authors, BookAuthor, Series, BookSeries, Bookshelves, BookBookshelf, Loans}
}

// ListTable returns an empty materialized list table for instance id. The
// accumulator adds the remaining domains.
func ListTable(id uint32) *Table {
	t := NewTable(listName(id), "bl", ID, RootKey)
	t.Temp = true
	return t
}

// NavTable returns the navigation overlay table for instance id.
func NavTable(id uint32) *Table {
	t := NewTable(listName(id)+"_nav", "blrp", ID, RealRowID, Level, Visible, Expanded, RootKey)
	t.Temp = true
	return t
}

// FlattenedTable returns the flattened book table for flattened id n.
func FlattenedTable(n uint32) *Table {
	t := NewTable("book_list_flat_"+strconv.FormatUint(uint64(n), 10), "blf", ID, Book)
	t.Temp = true
	return t
}

func listName(id uint32) string {
	return "book_list_" + strconv.FormatUint(uint64(id), 10)
}
