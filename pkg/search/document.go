// Package search implements bulk, search-time security filtering.
//
// A backing index cannot run the full per-cell decision logic for every hit,
// so the record-level and compartment-membership portions of the policy are
// expressed as a declarative, backend-neutral predicate (see BuildFilter)
// evaluated by the index, and field-level masking of sensitive fields is
// deferred to post-retrieval processing (see FieldMasker).
package search

import (
	"stratum-hq/bastion/pkg/classification"
)

// Document is the fixed schema of an indexed record. Optional security
// attributes are explicit fields rather than a free-form map so the masking
// contract is statically checkable.
type Document struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Content        string               `json:"content"`
	Author         string               `json:"author"`
	Classification classification.Level `json:"classification"`
	Organization   string               `json:"organization"`
	Department     string               `json:"department"`
	Location       string               `json:"location"`
	DateCreated    string               `json:"date_created"`

	// SharedWith lists organizations the document is shared with; the
	// wildcard "all" shares it with every organization.
	SharedWith []string `json:"shared_with"`

	// CellTags lists the cells whose members may retrieve the document;
	// "all" makes it retrievable org-wide. Field masking still applies.
	CellTags []string `json:"cell_tags"`

	// Need-to-know attributes. When NTKRequired is set, retrieval
	// additionally requires the principal to appear in NTKUsers or to hold
	// one of NTKCompartments.
	NTKRequired     bool     `json:"ntk_required"`
	NTKUsers        []string `json:"ntk_users,omitempty"`
	NTKCompartments []string `json:"ntk_compartments,omitempty"`

	// Sensitive fields, masked post-retrieval unless the principal has
	// specific cell-tag overlap with the document.
	SourceName string `json:"source_name,omitempty"`
	HandlerID  string `json:"handler_id,omitempty"`
	RawIntel   string `json:"raw_intel,omitempty"`
}

// SensitiveFields is the default set of field names subject to post-retrieval
// masking.
var SensitiveFields = []string{"source_name", "handler_id", "raw_intel"}

// Clone returns a deep copy of the document. Maskers operate on clones so
// index-owned documents are never mutated.
func (d Document) Clone() Document {
	out := d
	out.SharedWith = copyStrings(d.SharedWith)
	out.CellTags = copyStrings(d.CellTags)
	out.NTKUsers = copyStrings(d.NTKUsers)
	out.NTKCompartments = copyStrings(d.NTKCompartments)
	return out
}

// sensitiveField returns a pointer to the named sensitive field of doc, or
// nil when the name is not a known sensitive field.
func sensitiveField(doc *Document, name string) *string {
	switch name {
	case "source_name":
		return &doc.SourceName
	case "handler_id":
		return &doc.HandlerID
	case "raw_intel":
		return &doc.RawIntel
	}
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
