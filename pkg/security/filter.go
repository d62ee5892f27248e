package security

// FilterCells applies the cell-level access check to every cell of a record
// and returns the redacted view plus one decision per cell for the audit
// trail.
//
// Invariants:
//
//   - len(decisions) == len(cells), in input order, regardless of outcome.
//   - A denied cell's view carries the Redacted sentinel in place of both the
//     field value and the compartment list, so the view leaks neither.
//   - The input cells are never mutated; the view is built from copies.
//
// When the record carries a need-to-know grant, CheckNeedToKnow replaces the
// ordinary compartment check for every cell (the grant is a record-scoped
// allow-list). The classification check is always the cell's own.
//
// The denial reason is returned on the view so a privileged caller can choose
// to show it; callers serving unprivileged clients must strip it along with
// the decision detail.
func FilterCells(p *Principal, cells []Cell, grant *NeedToKnowGrant) ([]CellView, []CellDecision) {
	views := make([]CellView, 0, len(cells))
	decisions := make([]CellDecision, 0, len(cells))

	for _, cell := range cells {
		var d Decision
		if grant != nil && grant.Required {
			d = CheckNeedToKnow(p, cell.Classification, grant)
		} else {
			d = CheckCellAccess(p, cell.Classification, cell.Compartments)
		}

		decisions = append(decisions, CellDecision{
			FieldName:              cell.FieldName,
			RequiredClassification: cell.Classification,
			RequiredCompartments:   copyStrings(cell.Compartments),
			Decision:               d,
		})

		if d.Allowed {
			views = append(views, CellView{
				ID:             cell.ID,
				FieldName:      cell.FieldName,
				FieldValue:     cell.FieldValue,
				Classification: cell.Classification,
				Compartments:   copyStrings(cell.Compartments),
				Accessible:     true,
			})
			continue
		}

		views = append(views, CellView{
			ID:             cell.ID,
			FieldName:      cell.FieldName,
			FieldValue:     Redacted,
			Classification: cell.Classification,
			Compartments:   []string{Redacted},
			Accessible:     false,
			DenialReason:   d.Reason,
		})
	}

	return views, decisions
}

// AccessStats summarizes the outcome of filtering one record's cells.
type AccessStats struct {
	TotalCells      int `json:"total_cells"`
	AccessibleCells int `json:"accessible_cells"`
	RedactedCells   int `json:"redacted_cells"`
}

// StatsFor computes access statistics from a filtered cell view.
func StatsFor(views []CellView) AccessStats {
	stats := AccessStats{TotalCells: len(views)}
	for _, v := range views {
		if v.Accessible {
			stats.AccessibleCells++
		}
	}
	stats.RedactedCells = stats.TotalCells - stats.AccessibleCells
	return stats
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
