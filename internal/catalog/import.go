package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultSelector selects a top-level array of books.
const DefaultSelector = "$[*]"

// Import parses a JSON document, selects book objects with a JSONPath
// selector and adds each through w. It returns the number of books added.
//
// A book object looks like:
//
//	{"title": "Dune", "authors": ["Herbert, Frank"],
//	 "series": [{"name": "Dune", "number": "1"}], "shelves": ["SF"], "read": true}
//
// Authors may also be objects with "family" and "given" keys.
func Import(ctx context.Context, w *Writer, data []byte, selector string) (int, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	root, err := oj.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("parse json: %w", err)
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return 0, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}

	n := 0
	for i, v := range x.Get(root) {
		m, ok := v.(map[string]any)
		if !ok {
			return n, fmt.Errorf("match %d is %T, not an object", i, v)
		}
		b, err := bookFromMap(m)
		if err != nil {
			return n, fmt.Errorf("match %d: %w", i, err)
		}
		if _, err := w.Add(ctx, b); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func bookFromMap(m map[string]any) (*Book, error) {
	b := &Book{
		UUID:             str(m["uuid"]),
		Title:            str(m["title"]),
		Description:      str(m["description"]),
		Publisher:        str(m["publisher"]),
		Genre:            str(m["genre"]),
		Language:         str(m["language"]),
		Location:         str(m["location"]),
		Format:           str(m["format"]),
		Rating:           num(m["rating"]),
		Read:             flag(m["read"]),
		Signed:           flag(m["signed"]),
		ReadEnd:          str(m["read_end"]),
		DatePublished:    str(m["date_published"]),
		FirstPublication: str(m["first_publication"]),
		DateAcquired:     str(m["date_acquired"]),
		DateAdded:        str(m["date_added"]),
		LastUpdate:       str(m["last_update"]),
		LoanedTo:         str(m["loaned_to"]),
	}

	authors, _ := m["authors"].([]any)
	for _, a := range authors {
		switch v := a.(type) {
		case string:
			b.Authors = append(b.Authors, ParseAuthor(v))
		case map[string]any:
			b.Authors = append(b.Authors, Author{Family: str(v["family"]), Given: str(v["given"]), Complete: flag(v["complete"])})
		default:
			return nil, fmt.Errorf("author entry %T", a)
		}
	}

	series, _ := m["series"].([]any)
	for _, s := range series {
		switch v := s.(type) {
		case string:
			b.Series = append(b.Series, SeriesEntry{Name: v})
		case map[string]any:
			b.Series = append(b.Series, SeriesEntry{Name: str(v["name"]), Number: str(v["number"]), Complete: flag(v["complete"])})
		default:
			return nil, fmt.Errorf("series entry %T", s)
		}
	}

	shelves, _ := m["shelves"].([]any)
	for _, s := range shelves {
		if name := str(s); name != "" {
			b.Shelves = append(b.Shelves, name)
		}
	}
	return b, nil
}

// ParseAuthor splits "Family, Given" or "Given Family".
func ParseAuthor(s string) Author {
	s = strings.TrimSpace(s)
	if family, given, ok := strings.Cut(s, ","); ok {
		return Author{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}
	if i := strings.LastIndex(s, " "); i > 0 {
		return Author{Family: s[i+1:], Given: strings.TrimSpace(s[:i])}
	}
	return Author{Family: s}
}

func str(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func num(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}

func flag(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case string:
		ok, _ := strconv.ParseBool(x)
		return ok
	}
	return false
}
