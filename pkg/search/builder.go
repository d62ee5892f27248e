package search

import (
	"fmt"

	"stratum-hq/bastion/pkg/classification"
	"stratum-hq/bastion/pkg/security"
)

// BuildFilter translates a principal's security attributes into a
// backend-neutral filter predicate for the given mode.
//
// Construction is deterministic: the same principal and mode always yield a
// structurally identical predicate. Every mode produces a satisfiable
// predicate even when the principal's membership sets are empty — an empty
// cell-membership set still matches "all"-tagged documents, and an empty
// compartment set still matches documents that are not need-to-know or that
// list the principal by id or username.
//
// An unknown mode is an error; the caller must not fall back to a weaker
// filter.
func BuildFilter(p *security.Principal, query string, mode Mode) (Predicate, error) {
	if !ValidMode(mode) {
		return Predicate{}, fmt.Errorf("unknown filter mode %q", mode)
	}

	pred := Predicate{
		Query: query,
		Filters: []FilterClause{
			classificationClause(p),
			organizationClause(p),
		},
	}

	if mode == ModeCompartmented || mode == ModeNeedToKnow {
		pred.Filters = append(pred.Filters, cellClause(p))
	}
	if mode == ModeNeedToKnow {
		pred.Filters = append(pred.Filters, needToKnowClause(p))
	}

	return pred, nil
}

// classificationClause restricts hits to classifications at or below the
// principal's clearance. An unrecognized clearance yields an empty level set,
// which matches nothing.
func classificationClause(p *security.Principal) FilterClause {
	levels := classification.AtOrBelow(p.EffectiveClearance())
	values := make([]string, 0, len(levels))
	for _, l := range levels {
		values = append(values, string(l))
	}
	return FilterClause{Any: []Term{
		{Field: "classification", Values: values},
	}}
}

// organizationClause admits the principal's own organization's documents plus
// documents explicitly shared with it or shared with "all".
func organizationClause(p *security.Principal) FilterClause {
	return FilterClause{Any: []Term{
		{Field: "organization", Values: []string{p.Organization}},
		{Field: "shared_with", Values: []string{p.Organization}},
		{Field: "shared_with", Values: []string{"all"}},
	}}
}

// cellClause admits documents tagged "all" or tagged with any cell the
// principal belongs to.
func cellClause(p *security.Principal) FilterClause {
	clause := FilterClause{Any: []Term{
		{Field: "cell_tags", Values: []string{"all"}},
	}}
	if len(p.CellMemberships) > 0 {
		clause.Any = append(clause.Any, Term{
			Field:  "cell_tags",
			Values: copyStrings(p.CellMemberships),
		})
	}
	return clause
}

// needToKnowClause admits documents that do not require need-to-know, or
// that list the principal, or whose need-to-know compartments overlap the
// principal's. Listing accepts id or username, the same contract the masker
// and the decision engine apply.
func needToKnowClause(p *security.Principal) FilterClause {
	listed := []string{p.ID}
	if p.Username != "" && p.Username != p.ID {
		listed = append(listed, p.Username)
	}
	clause := FilterClause{Any: []Term{
		{Field: "ntk_required", Values: []string{"false"}},
		{Field: "ntk_users", Values: listed},
	}}
	if len(p.Compartments) > 0 {
		clause.Any = append(clause.Any, Term{
			Field:  "ntk_compartments",
			Values: copyStrings(p.Compartments),
		})
	}
	return clause
}
