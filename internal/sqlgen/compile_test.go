package sqlgen

import (
	"strconv"
	"strings"
	"testing"

	"github.com/agentic-research/booklist/internal/filter"
	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

// authorSeriesInput accumulates the same declarations the builder makes for an
// [Author, Series] style.
func authorSeriesInput(t *testing.T, strategy Strategy) Input {
	t.Helper()
	return levelsInput(t, strategy, group.KindAuthor, group.KindSeries)
}

func levelsInput(t *testing.T, strategy Strategy, kinds ...group.Kind) Input {
	t.Helper()
	list := schema.ListTable(5)
	acc := summary.New(list)
	require.NoError(t, acc.Declare(schema.Level, strconv.Itoa(len(kinds)+1), summary.FlagNone))
	require.NoError(t, acc.Declare(schema.Kind, "0", summary.FlagNone))
	require.NoError(t, acc.Declare(schema.Book, "b._id", summary.FlagNone))

	env := group.Env{Dates: summary.NewDateParts("Unknown", language.English), Descending: strategy.UsesTriggers()}
	var needs group.Needs
	var levels []LevelSpec
	for _, k := range kinds {
		_, err := group.Declare(acc, group.Level{Kind: k}, env, &needs)
		require.NoError(t, err)
		levels = append(levels, LevelSpec{Kind: k, Domains: acc.CloneGroups()})
	}
	require.NoError(t, acc.Declare(schema.Level, "", summary.FlagSorted))
	require.NoError(t, acc.Declare(schema.Title, "b.title", summary.FlagSorted))

	return Input{
		List:      list,
		Nav:       schema.NavTable(5),
		Acc:       acc,
		Levels:    levels,
		Needs:     needs,
		Strategy:  strategy,
		Collation: "NOCASE",
	}
}

func TestCompileValidation(t *testing.T) {
	t.Run("empty projection", func(t *testing.T) {
		_, err := Compile(Input{List: schema.ListTable(1), Nav: schema.NavTable(1), Acc: summary.New(schema.ListTable(1))})
		assert.ErrorIs(t, err, ErrEmptyProjection)
	})

	t.Run("sort column without source", func(t *testing.T) {
		in := authorSeriesInput(t, NestedTriggers)
		require.NoError(t, in.Acc.Declare(schema.Genre, "", summary.FlagSorted))
		_, err := Compile(in)
		assert.ErrorIs(t, err, ErrUnknownSortColumn)
	})
}

func TestCompileRootKey(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, NestedTriggers))
	require.NoError(t, err)
	assert.Equal(t, "'a' || '/' || Coalesce(ba.author, '')", p.RootKey)
	assert.Equal(t, group.KindAuthor, p.TopKind)
	assert.Equal(t, 3, p.LeafLevel)

	old, err := Compile(authorSeriesInput(t, BottomUp))
	require.NoError(t, err)
	assert.Equal(t, p.RootKey, old.RootKey)
}

func TestCompileOrderBy(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		p, err := Compile(authorSeriesInput(t, NestedTriggers))
		require.NoError(t, err)
		assert.Equal(t, "bl.author_sort COLLATE NOCASE, bl.series_name COLLATE NOCASE, bl.series_num_float,"+
			" bl.series_num COLLATE NOCASE, bl.level, bl.title COLLATE NOCASE", p.OrderBy)
		assert.Empty(t, p.ListIndexes)
	})

	t.Run("case sensitive folds text", func(t *testing.T) {
		in := authorSeriesInput(t, BottomUp)
		in.Collation = "BINARY"
		in.CaseSensitive = true
		p, err := Compile(in)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(p.OrderBy, "lower(bl.author_sort) COLLATE BINARY"))
		// The fallback only indexes the list under a case-insensitive collation.
		assert.Empty(t, p.ListIndexes)
	})

	t.Run("descending only with triggers", func(t *testing.T) {
		in := authorSeriesInput(t, NestedTriggers)
		_, err := group.Declare(in.Acc, group.Level{Kind: group.KindRating}, group.Env{Descending: true}, &in.Needs)
		require.NoError(t, err)
		p, err := Compile(in)
		require.NoError(t, err)
		assert.Contains(t, p.OrderBy, "bl.rating DESC")

		in.Strategy = BottomUp
		p, err = Compile(in)
		require.NoError(t, err)
		assert.NotContains(t, p.OrderBy, "DESC")
	})
}

func TestCompileOrderByKeepsNodesContiguous(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		kinds    []group.Kind
		want     string
	}{
		{
			name:     "series outside author",
			strategy: BottomUp,
			kinds:    []group.Kind{group.KindSeries, group.KindAuthor},
			want: "bl.series_name COLLATE NOCASE, bl.author_sort COLLATE NOCASE, bl.series_num_float," +
				" bl.series_num COLLATE NOCASE, bl.level, bl.title COLLATE NOCASE",
		},
		{
			name:     "last update year outside author",
			strategy: NestedTriggers,
			kinds:    []group.Kind{group.KindDateLastUpdateYear, group.KindAuthor},
			want: "bl.update_year COLLATE NOCASE DESC, bl.author_sort COLLATE NOCASE," +
				" bl.last_update_date COLLATE NOCASE DESC, bl.level, bl.title COLLATE NOCASE",
		},
		{
			name:     "last update year outside author without triggers",
			strategy: BottomUp,
			kinds:    []group.Kind{group.KindDateLastUpdateYear, group.KindAuthor},
			want: "bl.update_year COLLATE NOCASE, bl.author_sort COLLATE NOCASE," +
				" bl.last_update_date COLLATE NOCASE, bl.level, bl.title COLLATE NOCASE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Compile(levelsInput(t, tt.strategy, tt.kinds...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.OrderBy)
		})
	}
}

func TestCompileJoins(t *testing.T) {
	t.Run("primary author and series", func(t *testing.T) {
		p, err := Compile(authorSeriesInput(t, NestedTriggers))
		require.NoError(t, err)
		assert.Contains(t, p.BaseInsert, "FROM books b JOIN book_author ba ON ba.book = b._id AND ba.author_position = 1"+
			" JOIN authors a ON a._id = ba.author"+
			" LEFT OUTER JOIN book_series bs ON bs.book = b._id AND bs.series_position = 1"+
			" LEFT OUTER JOIN series s ON s._id = bs.series")
	})

	t.Run("shelves and loans", func(t *testing.T) {
		in := authorSeriesInput(t, NestedTriggers)
		in.Needs.Bookshelf = true
		in.Needs.Loan = true
		in.Needs.AllAuthors = true
		p, err := Compile(in)
		require.NoError(t, err)
		assert.Contains(t, p.BaseInsert, "FROM bookshelf sh JOIN book_bookshelf bbs ON bbs.shelf = sh._id"+
			" JOIN books b ON b._id = bbs.book LEFT OUTER JOIN loan l ON l.book = b._id"+
			" JOIN book_author ba ON ba.book = b._id JOIN authors a")
	})
}

func TestCompileWhere(t *testing.T) {
	in := authorSeriesInput(t, NestedTriggers)
	in.Filters = []filter.Filter{
		filter.Expr("b.read = 0"),
		filter.Wildcard{Column: "b.title", Value: ""},
		filter.Wildcard{Column: "b.title", Value: "dune"},
	}
	p, err := Compile(in)
	require.NoError(t, err)
	assert.Contains(t, p.BaseInsert, ` WHERE (b.read = 0) AND (b.title LIKE '%dune%' ESCAPE '\')`)

	in.Filters = nil
	p, err = Compile(in)
	require.NoError(t, err)
	assert.NotContains(t, p.BaseInsert, "WHERE")
}

func TestCompileNested(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, NestedTriggers))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.BaseInsert, "INSERT INTO book_list_5 ("))
	assert.True(t, strings.HasSuffix(p.BaseInsert, "ORDER BY author_sort COLLATE NOCASE, series_name COLLATE NOCASE,"+
		" series_num_float, series_num COLLATE NOCASE, level, title COLLATE NOCASE"))
	require.Len(t, p.Prepare, 4)
	assert.Equal(t, "CREATE TEMP TABLE book_list_5_curr (author_sort, series_name, series_num_float, series_num, level, title)", p.Prepare[0])

	// Innermost level first, so the outermost trigger is created last.
	assert.Contains(t, p.Prepare[1], "book_list_5_hdr_2 BEFORE INSERT ON book_list_5 FOR EACH ROW WHEN new.level = 3")
	assert.Contains(t, p.Prepare[1], "Coalesce(l.series_name, '') = Coalesce(new.series_name, '') COLLATE NOCASE")
	assert.NotContains(t, p.Prepare[1], "l.series_id", "only sorted domains take part in the comparison")
	assert.Contains(t, p.Prepare[1], "VALUES (2, 2, new.root_key, new.author_sort, new.author_formatted,")
	assert.Contains(t, p.Prepare[2], "book_list_5_hdr_1 BEFORE INSERT ON book_list_5 FOR EACH ROW WHEN new.level = 2")
	assert.Contains(t, p.Prepare[3], "AFTER INSERT ON book_list_5 FOR EACH ROW WHEN new.level = 2")
	assert.Empty(t, p.Headers)
	assert.Contains(t, p.NavPreserved, "ORDER BY bl._id")
}

func TestCompileFlat(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, FlatTriggers))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.BaseInsert, "INSERT INTO book_list_5_view ("))
	require.Len(t, p.Prepare, 3)
	assert.Equal(t, "CREATE TEMP VIEW book_list_5_view AS SELECT * FROM book_list_5", p.Prepare[1])
	trig := p.Prepare[2]
	assert.Contains(t, trig, "INSTEAD OF INSERT ON book_list_5_view")
	first := strings.Index(trig, "SELECT 1, 1, new.root_key")
	second := strings.Index(trig, "SELECT 2, 2, new.root_key")
	require.True(t, first > 0 && second > first, "outermost header is written first")
	assert.Contains(t, trig, "DELETE FROM book_list_5_curr;")
}

func TestCompileBottomUp(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, BottomUp))
	require.NoError(t, err)

	assert.NotContains(t, p.BaseInsert, "ORDER BY")
	assert.Empty(t, p.Prepare)
	require.Len(t, p.Headers, 2)
	assert.Contains(t, p.Headers[0], "SELECT 2, 2,")
	assert.Contains(t, p.Headers[0], "WHERE level = 3 GROUP BY author_sort COLLATE NOCASE,")
	assert.True(t, strings.HasSuffix(p.Headers[0], "root_key COLLATE NOCASE"))
	assert.Contains(t, p.Headers[1], "SELECT 1, 1,")
	require.Len(t, p.ListIndexes, 1)
	assert.Contains(t, p.ListIndexes[0], "CREATE INDEX book_list_5_IX1 ON book_list_5 (author_sort COLLATE NOCASE,")
	assert.Contains(t, p.NavPreserved, "ORDER BY "+p.OrderBy)
}

func TestCompileSuppress(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, NestedTriggers))
	require.NoError(t, err)
	assert.Equal(t, []string{"DELETE FROM book_list_5 WHERE level = 2 AND series_id IS NULL"}, p.Suppress)
}

func TestCompileNav(t *testing.T) {
	p, err := Compile(authorSeriesInput(t, NestedTriggers))
	require.NoError(t, err)
	assert.Contains(t, p.NavPreserved, "LEFT OUTER JOIN book_list_node_settings blns ON blns.root_key = bl.root_key AND blns.kind = 1")
	assert.Contains(t, p.NavExpanded, "1, 1 FROM book_list_5 bl")
	assert.Contains(t, p.NavCollapsed, "CASE WHEN bl.level = 1 THEN 1 ELSE 0 END, 0")
	assert.Equal(t, []string{
		"CREATE INDEX book_list_5_nav_IX1 ON book_list_5_nav (level, expanded, root_key)",
		"CREATE UNIQUE INDEX book_list_5_nav_IX2 ON book_list_5_nav (real_row_id)",
	}, p.NavIndexes)
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": NestedTriggers, "flat": FlatTriggers, "OLD": BottomUp} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("sideways")
	assert.Error(t, err)
}
