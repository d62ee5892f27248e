package security

import (
	"stratum-hq/bastion/pkg/classification"
)

// CheckRecordAccess decides whether a principal may see a record at all.
//
// Allowed iff the principal's effective clearance satisfies the record's
// classification. Callers must not evaluate cell-level checks for a record
// that was denied here; record-level and cell-level checks are independent
// layers and a record-level denial short-circuits the whole record.
func CheckRecordAccess(p *Principal, recordClassification classification.Level) Decision {
	if classification.Satisfies(p.EffectiveClearance(), recordClassification) {
		return allow()
	}
	return deny(ReasonInsufficientClearance, nil)
}

// CheckCellAccess decides whether a principal may see a single cell.
//
// The two checks run in a fixed order and produce mutually exclusive denial
// reasons:
//
//  1. Classification: effective clearance must satisfy the cell
//     classification. On failure the decision is INSUFFICIENT_CLEARANCE and
//     compartments are not evaluated.
//  2. Compartments (all-of): every required compartment must be in the
//     principal's approved set. On failure the decision is
//     NEED_TO_KNOW_REQUIRED with the specific missing compartments attached
//     for the audit trail.
//
// An empty required-compartment set always passes step 2.
func CheckCellAccess(p *Principal, cellClassification classification.Level, cellCompartments []string) Decision {
	if !classification.Satisfies(p.EffectiveClearance(), cellClassification) {
		return deny(ReasonInsufficientClearance, nil)
	}

	missing := missingCompartments(p.Compartments, cellCompartments)
	if len(missing) > 0 {
		return deny(ReasonNeedToKnowRequired, missing)
	}

	return allow()
}

// CheckNeedToKnow decides access to a resource flagged need-to-know.
//
// When grant.Required is true the ordinary compartment check is superseded:
// the principal must still satisfy the classification, and must either appear
// in the grant's user allow-list or hold at least one of the grant's
// compartments. When the grant is nil or not required, this degrades to a
// plain classification check (the caller applies normal compartment rules).
//
// The missing-compartment list is deliberately empty on an NTK denial: the
// grant's allow-list is not a set of compartments the principal "should"
// hold, and enumerating it would leak the sharing scope.
func CheckNeedToKnow(p *Principal, required classification.Level, grant *NeedToKnowGrant) Decision {
	if !classification.Satisfies(p.EffectiveClearance(), required) {
		return deny(ReasonInsufficientClearance, nil)
	}

	if grant == nil || !grant.Required {
		return allow()
	}

	for _, user := range grant.Users {
		if user == p.ID || user == p.Username {
			return allow()
		}
	}
	if overlaps(p.Compartments, grant.Compartments) {
		return allow()
	}

	return deny(ReasonNeedToKnowRequired, nil)
}

// HasCompartmentAccess reports whether the principal holds every required
// compartment. An empty required set means no restriction.
func HasCompartmentAccess(p *Principal, required []string) bool {
	return len(missingCompartments(p.Compartments, required)) == 0
}

// missingCompartments returns the required compartments not present in the
// held set, preserving the required order.
func missingCompartments(held, required []string) []string {
	if len(required) == 0 {
		return nil
	}

	heldSet := make(map[string]struct{}, len(held))
	for _, c := range held {
		heldSet[c] = struct{}{}
	}

	var missing []string
	for _, c := range required {
		if _, ok := heldSet[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

// overlaps reports whether two compartment sets share at least one element.
func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
