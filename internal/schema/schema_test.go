package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainDefinition(t *testing.T) {
	assert.Equal(t, "_id INTEGER PRIMARY KEY", ID.Definition())
	assert.Equal(t, "level INTEGER NOT NULL", Level.Definition())
	assert.Equal(t, "visible INTEGER DEFAULT 0", Visible.Definition())
	assert.True(t, Title.IsText())
	assert.False(t, Rating.IsText())
}

func TestTable(t *testing.T) {
	t.Run("duplicate domains are ignored", func(t *testing.T) {
		tbl := NewTable("x", "x1", ID, Title)
		assert.False(t, tbl.AddDomain(Title))
		assert.True(t, tbl.AddDomain(Genre))
		assert.Equal(t, []string{"_id", "title", "genre"}, Names(tbl.Domains()))
	})

	t.Run("ddl", func(t *testing.T) {
		tbl := ListTable(7)
		tbl.AddDomain(Level)
		assert.Equal(t, "CREATE TEMP TABLE book_list_7 (_id INTEGER PRIMARY KEY, root_key TEXT, level INTEGER NOT NULL)", tbl.CreateSQL())
		assert.Equal(t, "DROP TABLE IF EXISTS book_list_7", tbl.DropSQL())
		assert.Equal(t, "bl.level", tbl.Dot("level"))
		assert.Equal(t, "book_list_7 bl", tbl.Ref())
	})

	t.Run("index", func(t *testing.T) {
		nav := NavTable(3)
		assert.Equal(t, "CREATE UNIQUE INDEX book_list_3_nav_IX2 ON book_list_3_nav (real_row_id)",
			nav.IndexSQL("IX2", true, "real_row_id"))
	})

	t.Run("lookup", func(t *testing.T) {
		d, ok := Books.Domain("title")
		require.True(t, ok)
		assert.True(t, d.NotNull)
		assert.True(t, NodeSettings.Has(Kind))
	})

	t.Run("create if missing", func(t *testing.T) {
		assert.Contains(t, NodeSettings.CreateIfMissingSQL(), "CREATE TABLE IF NOT EXISTS book_list_node_settings (")
	})
}
