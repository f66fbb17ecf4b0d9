package group

import (
	"testing"

	"github.com/agentic-research/booklist/internal/schema"
	"github.com/agentic-research/booklist/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func testEnv() Env {
	return Env{Dates: summary.NewDateParts("Unknown", language.English), Descending: true}
}

func TestKindTable(t *testing.T) {
	prefixes := map[string]Kind{}
	for _, k := range Kinds() {
		require.True(t, k.Valid())
		if k == KindBook {
			assert.Empty(t, k.KeyDomains())
			continue
		}
		assert.NotEmpty(t, k.Prefix(), k.String())
		assert.NotEmpty(t, k.KeyDomains(), k.String())
		if prev, dup := prefixes[k.Prefix()]; dup {
			t.Fatalf("%s and %s share prefix %q", prev, k, k.Prefix())
		}
		prefixes[k.Prefix()] = k

		// Every kind must declare cleanly and include its key domains.
		acc := summary.New(schema.ListTable(1))
		declared, err := Declare(acc, Level{Kind: k}, testEnv(), &Needs{})
		require.NoError(t, err, k.String())
		for _, key := range k.KeyDomains() {
			assert.Contains(t, declared, key, k.String())
			assert.True(t, acc.Projected(key.Name), k.String())
		}
	}
}

func TestPersistedIDs(t *testing.T) {
	assert.Equal(t, 0, int(KindBook))
	assert.Equal(t, 1, int(KindAuthor))
	assert.Equal(t, 2, int(KindSeries))
	assert.Equal(t, 22, int(KindRating))
	assert.Equal(t, 23, int(KindBookshelf))
	assert.Equal(t, 28, int(KindDateFirstPublicationMonth))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Author")
	require.NoError(t, err)
	assert.Equal(t, KindAuthor, k)

	k, err = ParseKind("date-added-year")
	require.NoError(t, err)
	assert.Equal(t, KindDateAddedYear, k)

	_, err = ParseKind("colour")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDeclareAuthor(t *testing.T) {
	acc := summary.New(schema.ListTable(1))
	needs := &Needs{}
	_, err := Declare(acc, Level{Kind: KindAuthor, ShowAll: true, GivenNameFirst: true}, testEnv(), needs)
	require.NoError(t, err)

	assert.True(t, needs.AllAuthors)
	assert.Equal(t, []string{"author_sort", "author_formatted", "author_id", "author_complete"}, schema.Names(acc.CloneGroups()))
	require.Len(t, acc.SortKeys(), 1)
	assert.Equal(t, schema.AuthorSort, acc.SortKeys()[0].Domain)

	sortExpr, _ := acc.Expression("author_sort")
	assert.Contains(t, sortExpr, "a.family_name || ', ' || a.given_names")
	display, _ := acc.Expression("author_formatted")
	assert.Contains(t, display, "a.given_names || ' ' || a.family_name")
}

func TestDeclareDescending(t *testing.T) {
	t.Run("honoured", func(t *testing.T) {
		acc := summary.New(schema.ListTable(1))
		_, err := Declare(acc, Level{Kind: KindRating}, testEnv(), &Needs{})
		require.NoError(t, err)
		assert.True(t, acc.SortKeys()[0].Descending)
	})

	t.Run("cleared without support", func(t *testing.T) {
		env := testEnv()
		env.Descending = false
		acc := summary.New(schema.ListTable(1))
		_, err := Declare(acc, Level{Kind: KindDateLastUpdateYear}, env, &Needs{})
		require.NoError(t, err)
		for _, k := range acc.SortKeys() {
			assert.False(t, k.Descending, k.Domain.Name)
		}
	})
}

func TestDeclareNeeds(t *testing.T) {
	needs := &Needs{}
	acc := summary.New(schema.ListTable(1))
	_, err := Declare(acc, Level{Kind: KindLoaned}, testEnv(), needs)
	require.NoError(t, err)
	_, err = Declare(acc, Level{Kind: KindBookshelf}, testEnv(), needs)
	require.NoError(t, err)
	assert.Equal(t, Needs{Loan: true, Bookshelf: true}, *needs)
}

func TestDeclareInvalidKind(t *testing.T) {
	_, err := Declare(summary.New(schema.ListTable(1)), Level{Kind: Kind(99)}, testEnv(), &Needs{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestNullHeader(t *testing.T) {
	assert.Equal(t, schema.SeriesID, KindSeries.NullHeaderDomain())
	assert.Nil(t, KindAuthor.NullHeaderDomain())
}
