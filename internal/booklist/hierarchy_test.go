package booklist

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/booklist/internal/catalog"
	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/sqlgen"
)

// assertHierarchy checks that every row carries the key values of each header
// above it, and that no node appears twice under the same parent.
func assertHierarchy(t *testing.T, lib *library, rows []Row) {
	t.Helper()
	parents := make([]int, len(rows))
	for i, r := range rows {
		parents[i] = -1
		for j := i - 1; j >= 0; j-- {
			if rows[j].Level < r.Level {
				parents[i] = j
				break
			}
		}
	}

	seen := make(map[string]bool)
	for i, r := range rows {
		if r.Level > 1 {
			assert.GreaterOrEqual(t, parents[i], 0, "%s has no header above it", lib.describe(r))
		}
		for j := parents[i]; j >= 0; j = parents[j] {
			h := rows[j]
			for _, d := range h.Kind.KeyDomains() {
				assert.Equal(t, h.Values[d.Name], r.Values[d.Name],
					"%s at %d sits under %s at %d", lib.describe(r), i, lib.describe(h), j)
			}
		}
		if r.IsBook() {
			continue
		}
		key := fmt.Sprintf("%d/%d", parents[i], r.Level)
		for _, d := range r.Kind.KeyDomains() {
			key += fmt.Sprintf("/%v", r.Values[d.Name])
		}
		assert.False(t, seen[key], "%s at %d emitted twice under one parent", lib.describe(r), i)
		seen[key] = true
	}
}

func buildExpanded(t *testing.T, lib *library, strategy sqlgen.Strategy, kinds ...string) (*Builder, []Row) {
	t.Helper()
	ctx := context.Background()
	b := newBuilder(t, lib, mustStyle(t, kinds...), strategy)
	require.NoError(t, b.RequireDomain(schema.Title, schema.Books.Dot("title"), true))
	require.NoError(t, b.Build(ctx, PreferExpanded, 0))
	rows, err := b.Page(ctx, 0, 100)
	require.NoError(t, err)
	return b, rows
}

func TestHierarchyLayouts(t *testing.T) {
	tests := []struct {
		name  string
		kinds []string
		extra []*catalog.Book
		want  []string
	}{
		{
			name:  "series outside author",
			kinds: []string{"series", "author"},
			extra: []*catalog.Book{
				{Title: "Z1", Authors: []catalog.Author{alpha}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "1"}}},
				{Title: "Z2", Authors: []catalog.Author{beta}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "2"}}},
			},
			want: []string{
				"S:<nil>", "A:Alpha, Ann", "Solo", "A:Beta, Bob", "Bee",
				"S:Saga", "A:Alpha, Ann", "First",
				"S:Zed", "A:Alpha, Ann", "Z1", "A:Beta, Bob", "Z2",
			},
		},
		{
			name:  "genre author series",
			kinds: []string{"genre", "author", "series"},
			extra: []*catalog.Book{
				{Title: "Gx", Genre: "SF", Authors: []catalog.Author{beta}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "1"}}},
				{Title: "Gy", Genre: "SF", Authors: []catalog.Author{alpha}},
				{Title: "Gz", Genre: "Fantasy", Authors: []catalog.Author{alpha}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "2"}}},
				{Title: "Gw", Genre: "SF", Authors: []catalog.Author{beta}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "3"}}},
			},
			want: []string{
				"G:<nil>", "A:Alpha, Ann", "Solo", "S:Saga", "First", "A:Beta, Bob", "Bee",
				"G:Fantasy", "A:Alpha, Ann", "S:Zed", "Gz",
				"G:SF", "A:Alpha, Ann", "Gy", "A:Beta, Bob", "S:Zed", "Gx", "Gw",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := seedLibrary(t, tt.extra...)
			for _, strategy := range strategies {
				t.Run(strategy.String(), func(t *testing.T) {
					_, rows := buildExpanded(t, lib, strategy, tt.kinds...)
					assertHierarchy(t, lib, rows)
					got := make([]string, len(rows))
					for i, r := range rows {
						got[i] = lib.describe(r)
					}
					assert.Equal(t, tt.want, got)
				})
			}
		})
	}
}

func TestToggleWithSeriesOutsideAuthor(t *testing.T) {
	ctx := context.Background()
	lib := seedLibrary(t,
		&catalog.Book{Title: "Z1", Authors: []catalog.Author{alpha}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "1"}}},
		&catalog.Book{Title: "Z2", Authors: []catalog.Author{beta}, Series: []catalog.SeriesEntry{{Name: "Zed", Number: "2"}}},
	)
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			b, rows := buildExpanded(t, lib, strategy, "series", "author")
			var zed int64 = -1
			for _, r := range rows {
				if lib.describe(r) == "S:Zed" {
					zed = r.AbsolutePosition
				}
			}
			require.GreaterOrEqual(t, zed, int64(0))

			require.NoError(t, b.ExpandAll(ctx, false))
			require.NoError(t, b.ToggleExpandNode(ctx, zed))
			assert.Equal(t, []string{"S:<nil>", "S:Saga", "S:Zed", "A:Alpha, Ann", "Z1", "A:Beta, Bob", "Z2"}, lib.page(t, b))

			require.NoError(t, b.ExpandAll(ctx, false))
			require.NoError(t, b.EnsureAbsolutePositionVisible(ctx, zed+2))
			assert.Equal(t, []string{"S:<nil>", "S:Saga", "S:Zed", "A:Alpha, Ann", "Z1", "A:Beta, Bob", "Z2"}, lib.page(t, b))
		})
	}
}

func TestLastUpdateYearOutsideAuthor(t *testing.T) {
	lib := seedLibrary(t,
		&catalog.Book{Title: "U1", Authors: []catalog.Author{alpha}, LastUpdate: "2020-05-15 12:00:00"},
		&catalog.Book{Title: "U2", Authors: []catalog.Author{beta}, LastUpdate: "2020-03-15 12:00:00"},
		&catalog.Book{Title: "U3", Authors: []catalog.Author{alpha}, LastUpdate: "2020-01-15 12:00:00"},
	)
	want := map[sqlgen.Strategy][]string{
		// Newest first inside each author when triggers honour descending keys.
		sqlgen.NestedTriggers: {"Y:2020", "A:Alpha, Ann", "U1", "U3", "A:Beta, Bob", "U2"},
		sqlgen.FlatTriggers:   {"Y:2020", "A:Alpha, Ann", "U1", "U3", "A:Beta, Bob", "U2"},
		sqlgen.BottomUp:       {"Y:2020", "A:Alpha, Ann", "U3", "U1", "A:Beta, Bob", "U2"},
	}
	for _, strategy := range strategies {
		t.Run(strategy.String(), func(t *testing.T) {
			_, rows := buildExpanded(t, lib, strategy, "date_last_update_year", "author")
			assertHierarchy(t, lib, rows)

			var block []string
			for _, r := range rows {
				d := lib.describe(r)
				if r.Level == 1 && len(block) > 0 {
					break
				}
				if d == "Y:2020" || len(block) > 0 {
					block = append(block, d)
				}
			}
			assert.Equal(t, want[strategy], block)
		})
	}
}
