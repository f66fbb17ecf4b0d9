package api

// Style is the serialisable description of how a booklist is organised.
// It can be written as YAML, JSON or HCL:
//
//	name    = "by author"
//	locale  = "en"
//	unknown = "unknown"
//
//	group "author" {
//	  show_all = true
//	}
//	group "series" {}
//
//	filters {
//	  read = false
//	}
type Style struct {
	// Name identifies the style in listings.
	Name string `json:"name" yaml:"name" hcl:"name,optional"`
	// Locale is a BCP-47 tag used for case mapping of labels and searches.
	Locale string `json:"locale,omitempty" yaml:"locale,omitempty" hcl:"locale,optional"`
	// Unknown labels date groups whose value is missing or malformed.
	Unknown string `json:"unknown,omitempty" yaml:"unknown,omitempty" hcl:"unknown,optional"`
	// SortAuthorByGiven sorts authors by given name first.
	SortAuthorByGiven bool `json:"sort_author_by_given,omitempty" yaml:"sort_author_by_given,omitempty" hcl:"sort_author_by_given,optional"`
	// Groups are the levels of the hierarchy, outermost first.
	Groups []Group `json:"groups,omitempty" yaml:"groups,omitempty" hcl:"group,block"`
	// Filters restrict which books are listed.
	Filters *Filters `json:"filters,omitempty" yaml:"filters,omitempty" hcl:"filters,block"`
}

// Group is one level of the hierarchy.
type Group struct {
	// Kind is a group kind name such as "author" or "date_added_year".
	Kind string `json:"kind" yaml:"kind" hcl:"kind,label"`
	// ShowAll lists a book under every author or series, not just the first.
	ShowAll bool `json:"show_all,omitempty" yaml:"show_all,omitempty" hcl:"show_all,optional"`
	// GivenNameFirst displays author names as "Given Family".
	GivenNameFirst bool `json:"given_name_first,omitempty" yaml:"given_name_first,omitempty" hcl:"given_name_first,optional"`
}

// Filters are tri-state: unset means no restriction.
type Filters struct {
	Read   *bool `json:"read,omitempty" yaml:"read,omitempty" hcl:"read,optional"`
	Signed *bool `json:"signed,omitempty" yaml:"signed,omitempty" hcl:"signed,optional"`
	Loaned *bool `json:"loaned,omitempty" yaml:"loaned,omitempty" hcl:"loaned,optional"`
}
