package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	assert.Equal(t, "booklist", root.Use)
	for _, name := range []string{"verbose", "log", "db"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"init", "import", "show", "styles"})
}

func TestStylesCommand(t *testing.T) {
	out, err := run(t, "styles")
	require.NoError(t, err)
	assert.Contains(t, out, "* author_series  author > series")
	assert.Contains(t, out, "  flat")
}

const booksJSON = `{"books": [
  {"title": "Dune", "authors": ["Herbert, Frank"], "series": [{"name": "Dune", "number": "1"}]},
  {"title": "Children of Dune", "authors": ["Frank Herbert"], "series": [{"name": "Dune", "number": "3"}]},
  {"title": "Solaris", "authors": [{"family": "Lem", "given": "Stanislaw"}], "read": true}
]}`

func TestImportAndShow(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "catalog.db")
	src := filepath.Join(dir, "books.json")
	require.NoError(t, os.WriteFile(src, []byte(booksJSON), 0o644))

	out, err := run(t, "--db", db, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialised")

	out, err = run(t, "--db", db, "--log", "prod", "import", "--select", "$.books[*]", src)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 books")

	out, err = run(t, "--db", db, "show", "--state", "expanded")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "author_series: 3 books, 6 visible rows", lines[0])
	assert.Contains(t, lines[1], "- Herbert, Frank")
	assert.Contains(t, out, "Children of Dune")
	assert.Contains(t, out, "Lem, Stanislaw")

	out, err = run(t, "--db", db, "show", "--style", "unread", "--state", "collapsed", "--toggle", "0", "--mode", "old")
	require.NoError(t, err)
	assert.NotContains(t, out, "Solaris")
	assert.Contains(t, out, "- Herbert, Frank")
	assert.Contains(t, out, "- Dune", "expanding a node expands everything under it")
	assert.Contains(t, out, "Children of Dune")

	out, err = run(t, "--db", db, "show", "--title", "solaris", "--state", "expanded")
	require.NoError(t, err)
	assert.Contains(t, out, "author_series: 1 books, 2 visible rows")
}

func TestShowRejectsBadFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")
	_, err := run(t, "--db", db, "show", "--mode", "sideways")
	assert.Error(t, err)
	_, err = run(t, "--db", db, "show", "--state", "open")
	assert.Error(t, err)
	_, err = run(t, "--db", db, "show", "--style", "no-such-style")
	assert.Error(t, err)
	_, err = run(t, "--db", db, "--log", "xml", "show")
	assert.Error(t, err)
}
