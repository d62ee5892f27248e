package search

import (
	"strings"
)

// Mode selects how much of the security policy the filter predicate encodes.
type Mode string

const (
	// ModeBasic filters on classification ceiling and organization/sharing
	// scope only.
	ModeBasic Mode = "basic"

	// ModeCompartmented adds the cell-membership filter on top of basic.
	ModeCompartmented Mode = "compartmented"

	// ModeNeedToKnow adds the need-to-know filter on top of compartmented.
	ModeNeedToKnow Mode = "need_to_know"
)

// ValidMode reports whether m is a recognized filter mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeBasic, ModeCompartmented, ModeNeedToKnow:
		return true
	}
	return false
}

// Term matches documents whose field holds any one of Values.
type Term struct {
	Field  string
	Values []string
}

// FilterClause is an OR-group of terms; a document satisfies the clause when
// at least one term matches.
type FilterClause struct {
	Any []Term
}

// Predicate is a backend-neutral boolean filter tree: the conjunction of a
// free-text clause and every filter clause. Translation to a concrete index
// query language is mechanical (see the opensearch subpackage).
//
// An empty Query means match-all text. Filters are ANDed in order:
// classification, organization scope, then mode-dependent clauses.
type Predicate struct {
	Query   string
	Filters []FilterClause
}

// Matches evaluates the predicate against a single document. This is the
// reference semantics the index translation must agree with; the in-memory
// index uses it directly.
func (p Predicate) Matches(doc Document) bool {
	if !matchesText(p.Query, doc) {
		return false
	}
	for _, clause := range p.Filters {
		if !clause.matches(doc) {
			return false
		}
	}
	return true
}

func (c FilterClause) matches(doc Document) bool {
	for _, t := range c.Any {
		if t.matches(doc) {
			return true
		}
	}
	return false
}

func (t Term) matches(doc Document) bool {
	for _, want := range t.Values {
		for _, have := range fieldValues(doc, t.Field) {
			if have == want {
				return true
			}
		}
	}
	return false
}

// fieldValues returns the document's values for a filterable field. Unknown
// fields match nothing.
func fieldValues(doc Document, field string) []string {
	switch field {
	case "classification":
		return []string{string(doc.Classification)}
	case "organization":
		return []string{doc.Organization}
	case "department":
		return []string{doc.Department}
	case "shared_with":
		return doc.SharedWith
	case "cell_tags":
		return doc.CellTags
	case "ntk_required":
		if doc.NTKRequired {
			return []string{"true"}
		}
		return []string{"false"}
	case "ntk_users":
		return doc.NTKUsers
	case "ntk_compartments":
		return doc.NTKCompartments
	}
	return nil
}

// textFields lists the fields the free-text clause searches, mirroring the
// index-side multi_match field list.
var textFields = []string{"title", "content", "author", "department", "location", "source_name", "raw_intel"}

func matchesText(query string, doc Document) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	for _, f := range textFields {
		var v string
		switch f {
		case "title":
			v = doc.Title
		case "content":
			v = doc.Content
		case "author":
			v = doc.Author
		case "department":
			v = doc.Department
		case "location":
			v = doc.Location
		case "source_name":
			v = doc.SourceName
		case "raw_intel":
			v = doc.RawIntel
		}
		if containsFold(v, query) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
