package search

import (
	"log/slog"

	"stratum-hq/bastion/pkg/security"
)

// MaskedValue is the sentinel written over a sensitive field the principal
// may not see. Downstream consumers match on it literally; do not change.
const MaskedValue = "██ REDACTED ██"

// MaskState describes the per-field outcome of masking.
type MaskState string

const (
	// MaskVisible means the field value passed through unchanged.
	MaskVisible MaskState = "visible"

	// MaskEmpty means the field had no value to mask.
	MaskEmpty MaskState = "empty"

	// MaskRedacted means the field was masked for lack of specific
	// cell-tag overlap.
	MaskRedacted MaskState = "redacted"

	// MaskNTKRedacted means the field was masked by the need-to-know test.
	MaskNTKRedacted MaskState = "ntk_redacted"
)

// MaskedDocument is a retrieved document after field masking, with the
// per-field outcome alongside for UI and audit purposes.
type MaskedDocument struct {
	Document
	FieldAccess map[string]MaskState `json:"_field_access"`
}

// MaskerConfig configures a FieldMasker.
type MaskerConfig struct {
	// SensitiveFields names the document fields subject to masking.
	SensitiveFields []string

	// Logger receives per-document masking outcomes at debug level.
	// Defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultMaskerConfig returns a configuration masking the standard sensitive
// field set.
func DefaultMaskerConfig() MaskerConfig {
	return MaskerConfig{
		SensitiveFields: copyStrings(SensitiveFields),
	}
}

// FieldMasker masks sensitive fields on retrieved documents.
//
// Masking runs after the index query because sensitive-field visibility is
// not expressed in the predicate: doing so would leak field existence through
// scoring and ranking. A document that passed the query filter (for instance
// via an "all" cell tag) still has its sensitive fields masked unless the
// principal is in at least one specific cell listed on the document.
type FieldMasker struct {
	fields []string
	logger *slog.Logger
}

// NewFieldMasker constructs a masker from cfg.
func NewFieldMasker(cfg MaskerConfig) *FieldMasker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fields := cfg.SensitiveFields
	if fields == nil {
		fields = SensitiveFields
	}
	return &FieldMasker{
		fields: copyStrings(fields),
		logger: logger.With("component", "field_masker"),
	}
}

// Mask applies field masking to every document and returns masked copies.
// The input documents are never mutated.
//
// A sensitive field is visible iff the principal has specific cell-tag
// overlap with the document, ignoring the "all" wildcard. In need_to_know
// mode the document's need-to-know test must additionally pass; a failure
// there is reported as MaskNTKRedacted so callers can distinguish the two
// denial shapes.
func (m *FieldMasker) Mask(p *security.Principal, docs []Document, mode Mode) []MaskedDocument {
	out := make([]MaskedDocument, 0, len(docs))
	for _, doc := range docs {
		out = append(out, m.maskOne(p, doc, mode))
	}
	return out
}

func (m *FieldMasker) maskOne(p *security.Principal, doc Document, mode Mode) MaskedDocument {
	masked := MaskedDocument{
		Document:    doc.Clone(),
		FieldAccess: make(map[string]MaskState, len(m.fields)),
	}

	state := MaskVisible
	if !hasSpecificOverlap(p.CellMemberships, doc.CellTags) {
		state = MaskRedacted
	} else if mode == ModeNeedToKnow && !passesNeedToKnow(p, doc) {
		state = MaskNTKRedacted
	}

	redactedCount := 0
	for _, field := range m.fields {
		value := sensitiveField(&masked.Document, field)
		if value == nil {
			continue
		}
		if *value == "" {
			masked.FieldAccess[field] = MaskEmpty
			continue
		}
		if state == MaskVisible {
			masked.FieldAccess[field] = MaskVisible
			continue
		}
		*value = MaskedValue
		masked.FieldAccess[field] = state
		redactedCount++
	}

	if redactedCount > 0 {
		m.logger.Debug("masked sensitive fields",
			"document_id", doc.ID,
			"fields_masked", redactedCount,
			"state", string(state))
	}

	return masked
}

// hasSpecificOverlap reports whether held shares a member with tags, ignoring
// the "all" wildcard on the document side.
func hasSpecificOverlap(held, tags []string) bool {
	if len(held) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, c := range held {
		set[c] = struct{}{}
	}
	for _, tag := range tags {
		if tag == "all" {
			continue
		}
		if _, ok := set[tag]; ok {
			return true
		}
	}
	return false
}

// passesNeedToKnow mirrors the need_to_know filter clause for a single
// document: not required, or the principal is listed, or compartments
// overlap.
func passesNeedToKnow(p *security.Principal, doc Document) bool {
	if !doc.NTKRequired {
		return true
	}
	for _, u := range doc.NTKUsers {
		if u == p.ID || u == p.Username {
			return true
		}
	}
	set := make(map[string]struct{}, len(p.Compartments))
	for _, c := range p.Compartments {
		set[c] = struct{}{}
	}
	for _, c := range doc.NTKCompartments {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}
