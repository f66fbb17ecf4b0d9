package schema

import "strings"

// SQL storage classes used by domains.
const (
	TypeInteger = "INTEGER"
	TypeText    = "TEXT"
	TypeReal    = "REAL"
)

// Domain is a named column definition shared by every table that carries it.
// Two tables holding the same Domain agree on its name and type, so values can be
// copied between them by name.
type Domain struct {
	// Name of the column.
	Name string
	// Type is the SQLite storage class (TypeInteger, TypeText, TypeReal).
	Type string
	// NotNull adds a NOT NULL constraint.
	NotNull bool
	// Default is a literal SQL default value, empty for none.
	Default string
	// PrimaryKey makes this the INTEGER PRIMARY KEY (rowid alias) of its table.
	PrimaryKey bool
	// PreNormalized marks text that is already case-folded at write time.
	// Sort keys over such domains are never wrapped in lower().
	PreNormalized bool
}

// IsText reports whether collation applies to the domain.
func (d *Domain) IsText() bool {
	return d.Type == TypeText
}

// Definition renders the column definition used in CREATE TABLE.
func (d *Domain) Definition() string {
	var sb strings.Builder
	sb.WriteString(d.Name)
	sb.WriteByte(' ')
	sb.WriteString(d.Type)
	if d.PrimaryKey {
		sb.WriteString(" PRIMARY KEY")
	}
	if d.NotNull {
		sb.WriteString(" NOT NULL")
	}
	if d.Default != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(d.Default)
	}
	return sb.String()
}

func (d *Domain) String() string { return d.Name }

// Names returns the column names of ds in order.
func Names(ds []*Domain) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}
