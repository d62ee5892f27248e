package security

import (
	"stratum-hq/bastion/pkg/classification"
)

// Summary describes what a principal can access, for display to the
// principal themselves. It contains no information the principal does not
// already hold.
type Summary struct {
	Username                string               `json:"username"`
	Organization            string               `json:"organization"`
	ClearanceLevel          classification.Level `json:"clearance_level"`
	MaxRecordClassification classification.Level `json:"max_record_classification"`
	ApprovedCompartments    []string             `json:"approved_compartments"`
	Roles                   []string             `json:"roles"`
	CanViewUnclassified     bool                 `json:"can_view_unclassified"`
	CanViewConfidential     bool                 `json:"can_view_confidential"`
	CanViewSecret           bool                 `json:"can_view_secret"`
	CanViewTopSecret        bool                 `json:"can_view_top_secret"`
}

// Summarize builds an access summary for a principal.
func Summarize(p *Principal) Summary {
	clearance := p.EffectiveClearance()
	rank := classification.Rank(clearance)

	return Summary{
		Username:                p.Username,
		Organization:            p.Organization,
		ClearanceLevel:          clearance,
		MaxRecordClassification: clearance,
		ApprovedCompartments:    copyStrings(p.Compartments),
		Roles:                   copyStrings(p.Roles),
		CanViewUnclassified:     true,
		CanViewConfidential:     rank >= classification.Rank(classification.Confidential),
		CanViewSecret:           rank >= classification.Rank(classification.Secret),
		CanViewTopSecret:        rank >= classification.Rank(classification.TopSecret),
	}
}
