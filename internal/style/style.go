// Package style resolves booklist style documents into the group levels,
// preferences and filters a build runs with.
package style

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/booklist/api"
	"github.com/agentic-research/booklist/internal/filter"
	"github.com/agentic-research/booklist/internal/group"
	"github.com/agentic-research/booklist/internal/schema"
)

// Style is a resolved style. The zero value lists every book ungrouped.
type Style struct {
	Name              string
	Levels            []group.Level
	SortAuthorByGiven bool
	// Unknown labels missing date parts; empty means "Unknown".
	Unknown string
	Locale  language.Tag
	// Filters are the style's own restrictions. Inactive ones are skipped
	// when the list is compiled.
	Filters []filter.Filter
}

// Kinds returns the kind of each level, outermost first.
func (s *Style) Kinds() []group.Kind {
	out := make([]group.Kind, len(s.Levels))
	for i, l := range s.Levels {
		out[i] = l.Kind
	}
	return out
}

// Resolve validates doc and converts it.
func Resolve(doc api.Style) (*Style, error) {
	s := &Style{
		Name:              doc.Name,
		SortAuthorByGiven: doc.SortAuthorByGiven,
		Unknown:           doc.Unknown,
		Locale:            language.Und,
	}
	if doc.Locale != "" {
		tag, err := language.Parse(doc.Locale)
		if err != nil {
			return nil, fmt.Errorf("style %q: locale: %w", doc.Name, err)
		}
		s.Locale = tag
	}

	seen := make(map[group.Kind]bool)
	for i, g := range doc.Groups {
		k, err := group.ParseKind(g.Kind)
		if err != nil {
			return nil, fmt.Errorf("style %q: group %d: %w", doc.Name, i+1, err)
		}
		if k == group.KindBook {
			return nil, fmt.Errorf("style %q: group %d: books are always the innermost level", doc.Name, i+1)
		}
		if seen[k] {
			return nil, fmt.Errorf("style %q: group %s listed twice", doc.Name, k)
		}
		seen[k] = true
		s.Levels = append(s.Levels, group.Level{Kind: k, ShowAll: g.ShowAll, GivenNameFirst: g.GivenNameFirst})
	}

	if f := doc.Filters; f != nil {
		s.Filters = append(s.Filters,
			filter.TriState{Column: schema.Books.Dot("read"), Want: f.Read},
			filter.TriState{Column: schema.Books.Dot("signed"), Want: f.Signed},
			filter.Loaned{Want: f.Loaned},
		)
	}
	return s, nil
}

// Decode reads a style document in the format named by ext: ".yaml", ".yml",
// ".json" or ".hcl". name is used in HCL diagnostics.
func Decode(name, ext string, data []byte) (api.Style, error) {
	var doc api.Style
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".hcl":
		// hclsimple picks the syntax from the file name's extension.
		if !strings.HasSuffix(strings.ToLower(name), ".hcl") {
			name += ".hcl"
		}
		err = hclsimple.Decode(name, data, nil, &doc)
	default:
		return doc, fmt.Errorf("unsupported style format %q", ext)
	}
	if err != nil {
		return doc, fmt.Errorf("decode style %s: %w", name, err)
	}
	return doc, nil
}

// Load reads and resolves the style file at path. A document without a name
// is named after its file.
func Load(path string) (*Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read style: %w", err)
	}
	ext := filepath.Ext(path)
	doc, err := Decode(filepath.Base(path), ext, data)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), ext)
	}
	return Resolve(doc)
}

var (
	yes = true
	no  = false
)

var builtins = map[string]api.Style{
	"author_series": {Groups: []api.Group{{Kind: "author"}, {Kind: "series"}}},
	"author":        {Groups: []api.Group{{Kind: "author"}}},
	"unread": {
		Groups:  []api.Group{{Kind: "author"}, {Kind: "series"}},
		Filters: &api.Filters{Read: &no},
	},
	"genre":       {Groups: []api.Group{{Kind: "genre"}, {Kind: "author"}, {Kind: "series"}}},
	"publication": {Groups: []api.Group{{Kind: "date_published_year"}, {Kind: "date_published_month"}}},
	"recent":      {Groups: []api.Group{{Kind: "date_added_year"}, {Kind: "date_added_month"}, {Kind: "date_added_day"}}},
	"loaned":      {Groups: []api.Group{{Kind: "loaned"}, {Kind: "author"}}, Filters: &api.Filters{Loaned: &yes}},
	"shelves":     {Groups: []api.Group{{Kind: "bookshelf"}, {Kind: "author"}}},
	"rating":      {Groups: []api.Group{{Kind: "rating"}, {Kind: "author"}}},
	"flat":        {},
}

// DefaultName is the built-in style used when none is given.
const DefaultName = "author_series"

// Builtin returns the named built-in style.
func Builtin(name string) (*Style, error) {
	doc, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("no built-in style %q", name)
	}
	doc.Name = name
	return Resolve(doc)
}

// Builtins lists the built-in style names in order.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Find resolves ref as a built-in name first, then as a file path.
func Find(ref string) (*Style, error) {
	if ref == "" {
		ref = DefaultName
	}
	if _, ok := builtins[ref]; ok {
		return Builtin(ref)
	}
	return Load(ref)
}
