// Package security implements the cell-level access decision engine.
//
// The security model has three layers:
//
//  1. Record-level classification: whether a principal can see a record at all.
//  2. Cell-level classification: whether a principal can see an individual field.
//  3. Need-to-know compartments: an additional per-cell restriction on top of
//     clearance; the principal must hold every compartment the cell requires.
//
// All decision functions are pure: they read only their arguments, perform no
// I/O, and are safe to call concurrently. Malformed input degrades to denial,
// never to an error and never to an implicit allow.
package security

import (
	"time"

	"stratum-hq/bastion/pkg/classification"
)

// Redacted is the sentinel written in place of a denied cell's value and
// compartment list. Downstream consumers match on it literally; do not change.
const Redacted = "[REDACTED]"

// Reason identifies why an access decision denied.
type Reason string

const (
	// ReasonInsufficientClearance denotes a classification-rank failure.
	ReasonInsufficientClearance Reason = "INSUFFICIENT_CLEARANCE"

	// ReasonNeedToKnowRequired denotes a compartment (need-to-know) failure.
	ReasonNeedToKnowRequired Reason = "NEED_TO_KNOW_REQUIRED"
)

// Principal is the authenticated actor a decision is evaluated for.
//
// A Principal is constructed once per request from a validated identity
// assertion (see pkg/identity) and must not be mutated during a decision.
// All fields are expected to be normalized: Clearance is one of the four
// levels or empty (empty is treated as UNCLASSIFIED), and the sets contain
// plain trimmed strings.
type Principal struct {
	// ID is the stable identifier from the identity provider.
	ID string

	// Username is the human-readable login name.
	Username string

	// Organization is the owning organization (sharing scope).
	Organization string

	// Clearance is the maximum classification level this principal may access.
	Clearance classification.Level

	// Compartments is the set of approved need-to-know compartments.
	Compartments []string

	// Roles contains application role names (viewer, analyst, manager,
	// admin, auditor).
	Roles []string

	// CellMemberships contains the search-side cell tags this principal
	// belongs to. Used by query filtering and field masking, not by the
	// per-cell compartment check.
	CellMemberships []string
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool { return p.HasRole("admin") }

// IsAuditor reports whether the principal may read the audit trail.
// Admins are implicitly auditors.
func (p *Principal) IsAuditor() bool { return p.HasRole("auditor") || p.IsAdmin() }

// IsManager reports whether the principal holds the manager role or above.
func (p *Principal) IsManager() bool { return p.HasRole("manager") || p.IsAdmin() }

// IsAnalyst reports whether the principal holds the analyst role or above.
func (p *Principal) IsAnalyst() bool { return p.HasRole("analyst") || p.IsManager() }

// EffectiveClearance returns the principal's clearance, defaulting to
// UNCLASSIFIED when unset. A principal with no clearance attribute can still
// see unclassified data; it never gains more, and never errors out.
func (p *Principal) EffectiveClearance() classification.Level {
	if p.Clearance == "" {
		return classification.Unclassified
	}
	return p.Clearance
}

// Record is a classified record composed of individually classified cells.
//
// The record's classification is the minimum clearance required to see the
// record at all, independent of any cell's classification.
type Record struct {
	ID             string
	Title          string
	Description    string
	Classification classification.Level
	Cells          []Cell
	NTK            *NeedToKnowGrant

	CreatedBy string
	UpdatedBy string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cell is one classified field within a record. Visibility requires both
// clearance at or above the cell classification and every required
// compartment; the two checks are independent of the record-level check.
type Cell struct {
	ID             string
	RecordID       string
	FieldName      string
	FieldValue     string
	Classification classification.Level
	Compartments   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NeedToKnowGrant is an explicit per-resource allow-list. When Required is
// true it supersedes the ordinary compartment check (but not the
// classification check): the principal must appear in Users or hold at least
// one of Compartments.
type NeedToKnowGrant struct {
	Required     bool
	Users        []string
	Compartments []string
}

// Decision is the outcome of a single access check.
//
// MissingCompartments carries the specific compartments the principal lacked
// on a NEED_TO_KNOW_REQUIRED denial. It exists for the audit trail only and
// must never be surfaced to an unauthorized caller.
type Decision struct {
	Allowed             bool
	Reason              Reason
	MissingCompartments []string
}

// allow is the shared allowed decision.
func allow() Decision {
	return Decision{Allowed: true}
}

// deny constructs a denial with the given reason.
func deny(reason Reason, missing []string) Decision {
	return Decision{Allowed: false, Reason: reason, MissingCompartments: missing}
}

// CellView is the caller-facing projection of a cell after filtering.
// For a denied cell, FieldValue and Compartments hold the Redacted sentinel
// so neither the value nor the required compartments leak.
type CellView struct {
	ID             string               `json:"id"`
	FieldName      string               `json:"field_name"`
	FieldValue     string               `json:"field_value"`
	Classification classification.Level `json:"cell_classification"`
	Compartments   []string             `json:"compartments"`
	Accessible     bool                 `json:"accessible"`
	DenialReason   Reason               `json:"denial_reason,omitempty"`
}

// CellDecision is the audit-side result for one cell. FilterCells produces
// exactly one CellDecision per input cell, in input order; reconciliation
// logic may rely on that 1:1 correspondence.
type CellDecision struct {
	FieldName              string
	RequiredClassification classification.Level
	RequiredCompartments   []string
	Decision               Decision
}
