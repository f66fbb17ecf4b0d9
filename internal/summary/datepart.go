package summary

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DateParts renders SQL that extracts year, month and day parts from
// ISO-8601-ish text dates. Values that do not look like a date yield the
// Unknown label instead of garbage substrings.
type DateParts struct {
	unknown string
}

// NewDateParts returns a renderer whose UNKNOWN label is label upper-cased for
// the given locale.
func NewDateParts(label string, tag language.Tag) DateParts {
	if label == "" {
		label = "Unknown"
	}
	return DateParts{unknown: Quote(cases.Upper(tag).String(label))}
}

// Unknown returns the quoted UNKNOWN literal.
func (p DateParts) Unknown() string {
	return p.unknown
}

// Local converts full timestamps ("2001-02-03 04:05:06") from UTC to local
// time. Date-only values are left alone.
func (p DateParts) Local(field string) string {
	return fmt.Sprintf("CASE WHEN %s GLOB '*-*-* *' THEN datetime(%s, 'localtime') ELSE %s END", field, field, field)
}

// Year extracts the four-digit year.
func (p DateParts) Year(field string, local bool) string {
	if local {
		field = p.Local(field)
	}
	return fmt.Sprintf("CASE WHEN %s GLOB '[0-9][0-9][0-9][0-9]*' THEN substr(%s, 1, 4) ELSE %s END",
		field, field, p.unknown)
}

// Month extracts the month, one or two digits as written.
func (p DateParts) Month(field string, local bool) string {
	if local {
		field = p.Local(field)
	}
	return fmt.Sprintf("CASE WHEN %s GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]*' THEN substr(%s, 6, 2)"+
		" WHEN %s GLOB '[0-9][0-9][0-9][0-9]-[0-9]*' THEN substr(%s, 6, 1)"+
		" ELSE %s END",
		field, field, field, field, p.unknown)
}

// Day extracts the day of month for both padded and unpadded months and days.
func (p DateParts) Day(field string, local bool) string {
	if local {
		field = p.Local(field)
	}
	const y = "[0-9][0-9][0-9][0-9]"
	return fmt.Sprintf("CASE"+
		" WHEN %[1]s GLOB '"+y+"-[0-9][0-9]-[0-9][0-9]*' THEN substr(%[1]s, 9, 2)"+
		" WHEN %[1]s GLOB '"+y+"-[0-9]-[0-9][0-9]*' THEN substr(%[1]s, 8, 2)"+
		" WHEN %[1]s GLOB '"+y+"-[0-9][0-9]-[0-9]*' THEN substr(%[1]s, 9, 1)"+
		" WHEN %[1]s GLOB '"+y+"-[0-9]-[0-9]*' THEN substr(%[1]s, 8, 1)"+
		" ELSE %[2]s END",
		field, p.unknown)
}

// Quote renders s as an SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
